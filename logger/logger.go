package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a key/value logger backed by a zap SugaredLogger.
// Values logged under keys that name a user are hashed unless redaction is disabled.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
	redact        bool
	salt          string
}

type Options struct {
	Redact bool
	Salt   string
}

func New(mode string) (*Logger, error) {
	return NewWithOptions(mode, Options{Redact: true})
}

func NewWithOptions(mode string, opts Options) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar(), redact: opts.Redact, salt: opts.Salt}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, l.sanitize(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, l.sanitize(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, l.sanitize(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, l.sanitize(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, l.sanitize(keysAndValues)...)
}

func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(l.sanitize(keysAndValues)...),
		redact:        l.redact,
		salt:          l.salt,
	}
}

func (l *Logger) sanitize(kv []interface{}) []interface{} {
	if !l.redact || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := strings.ToLower(toString(kv[i]))
		val := kv[i+1]
		if strings.Contains(key, "user_id") {
			val = l.hash(val)
		}
		out = append(out, kv[i], val)
	}
	return out
}

func (l *Logger) hash(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	if l.salt != "" {
		_, _ = h.Write([]byte(l.salt))
	}
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
