// Package hcl_adapter implements the config.Loader and config.Converter
// interfaces for HCL. It discovers and parses manifest files, translates
// their blocks into the format-agnostic config model, and provides the
// reflection-based decoding that binds step arguments to module input
// structs. The expression function table lives here too, since it is part
// of the HCL surface.
package hcl_adapter
