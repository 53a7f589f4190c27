package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envWith(name, value string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if key == name {
			return value, true
		}
		return "", false
	}
}

func TestDeriveMainBranch(t *testing.T) {
	t.Run("placeholder without env", func(t *testing.T) {
		v, err := Derive(Scheme{Default: "0.4.0"}, Source{Branch: "main"}, noEnv)
		require.NoError(t, err)
		assert.Equal(t, "0.4.0", v.Value)
		assert.Equal(t, ChannelPlaceholder, v.Channel)
	})

	t.Run("environment override wins", func(t *testing.T) {
		v, err := Derive(Scheme{Default: "0.4.0"}, Source{Branch: "main"},
			envWith("GOFECTO_VERSION", "0.5.0rc1"))
		require.NoError(t, err)
		assert.Equal(t, "0.5.0rc1", v.Value)
	})

	t.Run("empty env value is ignored", func(t *testing.T) {
		v, err := Derive(Scheme{Default: "0.4.0"}, Source{Branch: "main"},
			envWith("GOFECTO_VERSION", ""))
		require.NoError(t, err)
		assert.Equal(t, "0.4.0", v.Value)
	})
}

func TestDeriveReleaseBranch(t *testing.T) {
	t.Run("version comes from the branch name", func(t *testing.T) {
		v, err := Derive(Scheme{}, Source{Branch: "release/1.2.3"}, noEnv)
		require.NoError(t, err)
		assert.Equal(t, "1.2.3", v.Value)
		assert.Equal(t, ChannelRelease, v.Channel)
	})

	t.Run("pre-release suffix allowed", func(t *testing.T) {
		v, err := Derive(Scheme{}, Source{Branch: "release/2.0.0-rc.1"}, noEnv)
		require.NoError(t, err)
		assert.Equal(t, "2.0.0-rc.1", v.Value)
	})

	t.Run("empty version component fails", func(t *testing.T) {
		_, err := Derive(Scheme{}, Source{Branch: "release/"}, noEnv)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no version component")
	})

	t.Run("malformed version fails", func(t *testing.T) {
		_, err := Derive(Scheme{}, Source{Branch: "release/next-big-thing"}, noEnv)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not MAJOR.MINOR.PATCH")
	})
}

func TestDeriveOtherBranches(t *testing.T) {
	cases := []struct {
		branch string
		want   string
	}{
		{"feature/login-api", "0.0.0-dev.login-api"},
		{"fix/Issue_421", "0.0.0-dev.issue-421"},
		{"spike", "0.0.0-dev.spike"},
		{"feat/nested/deep", "0.0.0-dev.nested-deep"},
	}
	for _, tc := range cases {
		t.Run(tc.branch, func(t *testing.T) {
			v, err := Derive(Scheme{}, Source{Branch: tc.branch}, noEnv)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.Value)
			assert.Equal(t, ChannelDev, v.Channel)
		})
	}
}

func TestDeriveTagWins(t *testing.T) {
	// A checkout sitting exactly on a release tag derives from the tag,
	// whatever the branch says.
	v, err := Derive(Scheme{}, Source{Branch: "main", Tag: "v3.1.4"}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "3.1.4", v.Value)
	assert.Equal(t, ChannelRelease, v.Channel)
}

func TestDeriveBadReleaseTag(t *testing.T) {
	_, err := Derive(Scheme{}, Source{Tag: "vNext"}, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a version")
}

func TestDeriveDetachedHead(t *testing.T) {
	t.Run("uses the short sha as token", func(t *testing.T) {
		v, err := Derive(Scheme{}, Source{SHA: "AB12CD3"}, noEnv)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0-dev.ab12cd3", v.Value)
	})

	t.Run("fails with nothing to go on", func(t *testing.T) {
		_, err := Derive(Scheme{}, Source{}, noEnv)
		require.Error(t, err)
	})
}

func TestDeriveCustomTemplate(t *testing.T) {
	scheme := Scheme{Default: "1.0.0", DevTemplate: "${base}+${token}.${short_sha}"}
	v, err := Derive(scheme, Source{Branch: "feature/caching", SHA: "ab12cd3"}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0+caching.ab12cd3", v.Value)
}

func TestDeriveBrokenTemplate(t *testing.T) {
	_, err := Derive(Scheme{DevTemplate: "${nope}"}, Source{Branch: "x"}, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluating dev template")
}

func TestToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"feature/login-api", "login-api"},
		{"Feature/Login_API", "login-api"},
		{"bugfix/ISSUE-99..hot", "issue-99-hot"},
		{"plain", "plain"},
		{"weird///", "branch"},
		{"feature/" + "a-very-long-branch-name-that-keeps-going-and-going", "a-very-long-branch-name-that-k"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Token(tc.in), "input %q", tc.in)
	}
}

func TestValidRelease(t *testing.T) {
	assert.True(t, ValidRelease("1.2.3"))
	assert.True(t, ValidRelease("0.1.0-rc.1"))
	assert.True(t, ValidRelease("2.0.0+build.5"))
	assert.False(t, ValidRelease("1.2"))
	assert.False(t, ValidRelease("v1.2.3"))
	assert.False(t, ValidRelease("next"))
}
