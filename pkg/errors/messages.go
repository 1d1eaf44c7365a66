package errors

import (
	"fmt"
	"strings"
)

// FormatUserError returns a user-friendly error message with actionable guidance.
// It examines the error chain and provides context-appropriate help text.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var configErr *ConfigError
	if As(err, &configErr) {
		return formatConfigError(configErr)
	}

	var indexErr *IndexError
	if As(err, &indexErr) {
		if indexErr.Len == 0 {
			return "History is empty."
		}
		return fmt.Sprintf("History index %d is out of range: this history holds %d commands (valid indices %d..%d).",
			indexErr.Index, indexErr.Len, -indexErr.Len, indexErr.Len-1)
	}

	var keyErr *KeyError
	if As(err, &keyErr) {
		return fmt.Sprintf("No command in history contains %q.", keyErr.Key)
	}

	var malformed *MalformedRecordError
	if As(err, &malformed) {
		return formatMalformedError(malformed)
	}

	var lockErr *LockError
	if As(err, &lockErr) {
		return fmt.Sprintf("History file %s is busy: %s\nAnother shell is writing to it; try again shortly.", lockErr.Path, lockErr.Message)
	}

	var flushErr *FlushError
	if As(err, &flushErr) {
		return fmt.Sprintf("History could not be saved: %s\nThe %d unsaved commands are kept in memory and will be retried on the next flush.",
			flushErr.Message, flushErr.Pending)
	}

	var srcErr *SourceError
	if As(err, &srcErr) {
		var b strings.Builder
		fmt.Fprintf(&b, "Could not read %s history: %s\n", srcErr.Source, srcErr.Message)
		if srcErr.Path != "" {
			fmt.Fprintf(&b, "\nChecked path: %s\n", srcErr.Path)
		}
		b.WriteString("Set the path under [history] in ~/.config/shist/config.toml.\n")
		return b.String()
	}

	return err.Error()
}

// formatConfigError formats a ConfigError with actionable guidance.
func formatConfigError(err *ConfigError) string {
	var b strings.Builder

	if err.Field != "" {
		fmt.Fprintf(&b, "Configuration error in '%s': %s\n", err.Field, err.Message)
	} else {
		fmt.Fprintf(&b, "Configuration error: %s\n", err.Message)
	}

	b.WriteString("\nTo fix this:\n")
	b.WriteString("  • Check your config file: ~/.config/shist/config.toml\n")
	b.WriteString("  • Check HISTCONTROL and SHIST_* environment variables\n")
	b.WriteString("  • Run 'shist config init' to write a fresh default config\n")

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

func formatMalformedError(err *MalformedRecordError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "History file is damaged: %s\n", err.Reason)
	if err.Path != "" {
		fmt.Fprintf(&b, "\nFile: %s (offset %d)\n", err.Path, err.Offset)
	}
	b.WriteString("Records before the damaged unit are still readable; later ones are not.\n")

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}
