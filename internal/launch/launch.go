// Package launch builds the shell command line that starts the UI automation
// tool for one supervised session.
package launch

import "strings"

// DefaultTool is the automation binary invoked when Spec.Tool is empty.
const DefaultTool = "instruments"

// Spec describes one invocation of the automation tool. HardwareID and
// SimDevice are alternatives; when both are set the hardware id wins.
type Spec struct {
	Tool         string
	TemplatePath string
	AppLocation  string
	ScriptPath   string
	ResultsDir   string
	HardwareID   string
	SimDevice    string
	SimLanguage  string
	SimLocale    string
	Saltinel     string
}

// SimulatorTarget reports whether this run targets a simulator rather than a
// physical device.
func (s Spec) SimulatorTarget() bool {
	return s.HardwareID == "" && s.SimDevice != ""
}

// CommandLine renders the full shell command. Every path and value is single
// quoted; the language value is additionally parenthesized because the tool
// expects a property-list array literal there.
func (s Spec) CommandLine() string {
	tool := s.Tool
	if tool == "" {
		tool = DefaultTool
	}

	var b strings.Builder
	b.WriteString(tool)
	switch {
	case s.HardwareID != "":
		b.WriteString(" -w " + quote(s.HardwareID))
	case s.SimDevice != "":
		b.WriteString(" -w " + quote(s.SimDevice))
	}
	b.WriteString(" -t " + quote(s.TemplatePath))
	b.WriteString(" " + quote(s.AppLocation))
	b.WriteString(" -e UIASCRIPT " + quote(s.ScriptPath))
	b.WriteString(" -e UIARESULTSPATH " + quote(s.ResultsDir))
	if s.Saltinel != "" {
		b.WriteString(" -e UIASALTINEL " + quote(s.Saltinel))
	}
	if s.SimLanguage != "" {
		b.WriteString(" -AppleLanguages " + quote("("+s.SimLanguage+")"))
	}
	if s.SimLocale != "" {
		b.WriteString(" -AppleLocale " + quote(s.SimLocale))
	}
	return b.String()
}

// quote wraps v in single quotes; an embedded single quote closes the
// string, emits an escaped quote and reopens it.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
