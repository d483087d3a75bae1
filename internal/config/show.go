package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	ew.printf("credentials_file = %q\n", r.CredentialsFile)
	ew.printf("root_folder      = %q\n\n", r.RootFolder)

	ew.printf("api_endpoint     = %q\n", r.APIEndpoint)
	ew.printf("page_size        = %d\n\n", r.PageSize)

	ew.printf("log_level        = %q\n", r.LogLevel)
	ew.printf("log_format       = %q\n\n", r.LogFormat)

	ew.printf("connect_timeout  = %q\n", r.ConnectTimeout)
	ew.printf("data_timeout     = %q\n", r.DataTimeout)
	ew.printf("user_agent       = %q\n", r.UserAgent)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
