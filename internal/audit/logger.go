package audit

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Logger writes one structured line per security relevant business event.
// It plugs into auth.Service.WithAudit.
type Logger struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// Record logs action with fields. Admin actions, refresh token reuse and
// failures are warnings; everything else is info. Values under keys that
// hold an email address are masked.
func (l *Logger) Record(action string, fields map[string]string) {
	evt := l.log.Info()
	if warnWorthy(action, fields) {
		evt = l.log.Warn()
	}
	evt = evt.Str("action", action)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := fields[k]
		if strings.Contains(k, "email") {
			v = maskEmail(v)
		}
		evt = evt.Str(k, v)
	}
	evt.Msg("audit")
}

func warnWorthy(action string, fields map[string]string) bool {
	if fields["result"] == "error" {
		return true
	}
	return strings.HasPrefix(action, "admin.") || action == "session.refresh_reuse"
}

// maskEmail partially masks email for privacy in logs
func maskEmail(email string) string {
	if len(email) < 5 {
		return "***"
	}
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return email[:2] + "***"
	}
	if at < 2 {
		return email[:1] + "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}
