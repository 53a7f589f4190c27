// Package version derives the project version string from repository state:
// branch naming conventions, an exact release tag, or an environment
// override. The rules mirror the delivery pipeline contract: main builds get
// a placeholder version, release/<X> builds get X, anything else gets a dev
// version carrying a token parsed from the branch name.
package version

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Channel classifies how a version was derived.
type Channel string

const (
	// ChannelRelease means the version came from a release branch or tag.
	ChannelRelease Channel = "release"
	// ChannelDev means a development version with a branch token.
	ChannelDev Channel = "dev"
	// ChannelPlaceholder means the fixed or environment-supplied version
	// used on the main branch.
	ChannelPlaceholder Channel = "placeholder"
)

// Scheme configures derivation. Zero fields fall back to the documented
// defaults.
type Scheme struct {
	// Default is the placeholder version used on the main branch when the
	// environment variable is unset. Defaults to "0.0.0".
	Default string
	// EnvVar names the environment override consulted for main builds.
	// Defaults to "GOFECTO_VERSION".
	EnvVar string
	// MainBranch defaults to "main".
	MainBranch string
	// ReleasePrefix defaults to "release/".
	ReleasePrefix string
	// DevTemplate is an HCL template over base, token, branch and
	// short_sha. Defaults to "${base}-dev.${token}".
	DevTemplate string
}

// Source is the repository snapshot derivation reads from.
type Source struct {
	Branch string
	Tag    string // tag pointing exactly at HEAD, if any
	SHA    string
	Dirty  bool
}

// Version is a derived version string plus its channel.
type Version struct {
	Value   string
	Channel Channel
}

func (v Version) String() string { return v.Value }

// releasePattern accepts MAJOR.MINOR.PATCH with optional pre-release and
// build metadata.
var releasePattern = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)

// ValidRelease reports whether s is an acceptable release version string.
func ValidRelease(s string) bool {
	return releasePattern.MatchString(s)
}

func (s Scheme) withDefaults() Scheme {
	if s.Default == "" {
		s.Default = "0.0.0"
	}
	if s.EnvVar == "" {
		s.EnvVar = "GOFECTO_VERSION"
	}
	if s.MainBranch == "" {
		s.MainBranch = "main"
	}
	if s.ReleasePrefix == "" {
		s.ReleasePrefix = "release/"
	}
	if s.DevTemplate == "" {
		s.DevTemplate = "${base}-dev.${token}"
	}
	return s
}

// Derive maps repository state to a version. Priority: exact release tag,
// then main branch placeholder, then release branch, then dev version.
// lookupEnv follows the os.LookupEnv signature.
func Derive(scheme Scheme, src Source, lookupEnv func(string) (string, bool)) (Version, error) {
	scheme = scheme.withDefaults()

	if strings.HasPrefix(src.Tag, "v") {
		raw := strings.TrimPrefix(src.Tag, "v")
		if !ValidRelease(raw) {
			return Version{}, fmt.Errorf("tag %q looks like a release tag but %q is not a version", src.Tag, raw)
		}
		return Version{Value: raw, Channel: ChannelRelease}, nil
	}

	if src.Branch == scheme.MainBranch {
		value := scheme.Default
		if env, ok := lookupEnv(scheme.EnvVar); ok && env != "" {
			value = env
		}
		return Version{Value: value, Channel: ChannelPlaceholder}, nil
	}

	if strings.HasPrefix(src.Branch, scheme.ReleasePrefix) {
		raw := strings.TrimPrefix(src.Branch, scheme.ReleasePrefix)
		if raw == "" {
			return Version{}, fmt.Errorf("release branch %q has no version component", src.Branch)
		}
		if !ValidRelease(raw) {
			return Version{}, fmt.Errorf("release branch version %q is not MAJOR.MINOR.PATCH", raw)
		}
		return Version{Value: raw, Channel: ChannelRelease}, nil
	}

	value, err := renderDevTemplate(scheme, src)
	if err != nil {
		return Version{}, err
	}
	return Version{Value: value, Channel: ChannelDev}, nil
}

func renderDevTemplate(scheme Scheme, src Source) (string, error) {
	token := Token(src.Branch)
	if src.Branch == "" {
		if src.SHA == "" {
			return "", fmt.Errorf("cannot derive a dev version without a branch or commit")
		}
		token = strings.ToLower(src.SHA)
	}

	expr, diags := hclsyntax.ParseTemplate([]byte(scheme.DevTemplate), "dev_template", hcl.InitialPos)
	if diags.HasErrors() {
		return "", fmt.Errorf("parsing dev template: %w", diags)
	}

	evalCtx := &hcl.EvalContext{Variables: map[string]cty.Value{
		"base":      cty.StringVal(scheme.Default),
		"token":     cty.StringVal(token),
		"branch":    cty.StringVal(src.Branch),
		"short_sha": cty.StringVal(src.SHA),
	}}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("evaluating dev template: %w", diags)
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("dev template must produce a string, got %s", val.Type().FriendlyName())
	}
	return val.AsString(), nil
}

const maxTokenLen = 30

// Token reduces a branch name to a version-safe identifier: the segment
// after the first slash (or the whole name), lowercased, with anything
// outside [a-z0-9] collapsed to single dashes.
func Token(branch string) string {
	if i := strings.Index(branch, "/"); i >= 0 {
		branch = branch[i+1:]
	}
	branch = strings.ToLower(branch)

	var b strings.Builder
	lastDash := false
	for _, r := range branch {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	token := strings.TrimRight(b.String(), "-")
	if len(token) > maxTokenLen {
		token = strings.TrimRight(token[:maxTokenLen], "-")
	}
	if token == "" {
		return "branch"
	}
	return token
}
