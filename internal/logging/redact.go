package logging

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	redacted     = "[REDACTED]"
	redactedHit  = "[REDACTED:pattern]"
	maskedSecret = "xxxxx" // same mask as url.URL.Redacted
)

// Connection parameters whose values are credentials, in URL query or
// keyword/value form.
var dsnSecretParams = map[string]bool{
	"password":    true,
	"sslpassword": true,
}

var keywordSecret = regexp.MustCompile(`(?i)\b(password|sslpassword)(\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)

// DSN returns a field holding a connection string with its credentials
// masked. URL user passwords and password/sslpassword parameters are
// replaced by xxxxx in both postgres://... and key=value forms; anything
// else that cannot be parsed is replaced by its length.
func DSN(key, raw string) zap.Field {
	return zap.String(key, maskDSN(raw))
}

func maskDSN(raw string) string {
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			return redactedLen(raw)
		}
		u.RawQuery = maskQuery(u.RawQuery)
		return u.Redacted()
	}
	if strings.Contains(raw, "=") {
		return keywordSecret.ReplaceAllString(raw, "${1}${2}"+maskedSecret)
	}
	return redactedLen(raw)
}

// maskQuery masks credential parameters in place, keeping parameter order.
func maskQuery(raw string) string {
	if raw == "" {
		return raw
	}
	parts := strings.Split(raw, "&")
	for i, part := range parts {
		name, _, _ := strings.Cut(part, "=")
		if unescaped, err := url.QueryUnescape(name); err == nil {
			name = unescaped
		}
		if dsnSecretParams[strings.ToLower(name)] {
			parts[i] = url.QueryEscape(name) + "=" + maskedSecret
		}
	}
	return strings.Join(parts, "&")
}

func redactedLen(s string) string {
	return "[REDACTED:" + strconv.Itoa(len(s)) + "]"
}

// scrubber replaces sensitive fields and values before they are encoded.
type scrubber struct {
	keys     map[string]bool
	patterns []*regexp.Regexp
}

func newScrubber(keys, patterns []string) (*scrubber, error) {
	s := &scrubber{keys: make(map[string]bool, len(keys))}
	for _, k := range keys {
		s.keys[strings.ToLower(k)] = true
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

func (s *scrubber) matches(v string) bool {
	for _, re := range s.patterns {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// field returns the scrubbed form of f and whether it changed.
func (s *scrubber) field(f zapcore.Field) (zapcore.Field, bool) {
	if s.keys[strings.ToLower(f.Key)] {
		return zap.String(f.Key, redacted), true
	}
	if f.Type == zapcore.StringType && s.matches(f.String) {
		return zap.String(f.Key, redactedHit), true
	}
	return f, false
}

// fields copies fs only when a field needs scrubbing.
func (s *scrubber) fields(fs []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fs {
		clean, changed := s.field(f)
		if !changed {
			if out != nil {
				out[i] = f
			}
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fs))
			copy(out, fs[:i])
		}
		out[i] = clean
	}
	if out == nil {
		return fs
	}
	return out
}

func (s *scrubber) message(msg string) string {
	for _, re := range s.patterns {
		msg = re.ReplaceAllString(msg, redactedHit)
	}
	return msg
}

// scrubCore scrubs fields added with With and at write time.
type scrubCore struct {
	zapcore.Core
	scrub *scrubber
}

func (c *scrubCore) With(fs []zapcore.Field) zapcore.Core {
	return &scrubCore{Core: c.Core.With(c.scrub.fields(fs)), scrub: c.scrub}
}

func (c *scrubCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *scrubCore) Write(e zapcore.Entry, fs []zapcore.Field) error {
	e.Message = c.scrub.message(e.Message)
	return c.Core.Write(e, c.scrub.fields(fs))
}
