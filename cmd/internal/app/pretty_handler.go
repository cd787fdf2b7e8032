package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders one line per record for a terminal:
//
//	09:00:01.250 WARN  session refresh.reuse_detected principal=01J.. lineage=01J.. cascade=false
//
// The event domain is split off the message, session identity fields are
// hoisted right after it, and err/cause always close the line.
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []prettyField
	groups []string
	color  bool
	mu     *sync.Mutex
}

type prettyField struct {
	key string
	val slog.Value
}

// hoistedKeys lead every line in this order when present.
var hoistedKeys = []string{"principal_id", "lineage_id"}

// trailingKeys close every line.
var trailingKeys = []string{"err", "cause"}

var shortKeys = map[string]string{
	"principal_id": "principal",
	"lineage_id":   "lineage",
	"status_class": "class",
	"duration_ms":  "duration",
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, color: color, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(paint(ts.Format("15:04:05.000"), ansiDim, h.color))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level, h.color))
	b.WriteByte(' ')
	b.WriteString(h.event(r.Message))

	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			b.WriteString(" src=")
			b.WriteString(paint(fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line), ansiDim, h.color))
		}
	}

	fields := slices.Clone(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		fields = h.collect(fields, h.groups, a)
		return true
	})
	for _, f := range orderFields(fields) {
		b.WriteByte(' ')
		b.WriteString(displayKey(f.key))
		b.WriteByte('=')
		b.WriteString(h.render(f))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		cp.attrs = h.collect(cp.attrs, h.groups, a)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(slices.Clone(h.groups), name)
	return &cp
}

// collect flattens a into dst with dotted group keys and applies ReplaceAttr.
func (h *prettyHandler) collect(dst []prettyField, groups []string, a slog.Attr) []prettyField {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = append(slices.Clone(groups), a.Key)
		}
		for _, ga := range a.Value.Group() {
			dst = h.collect(dst, inner, ga)
		}
		return dst
	}
	if h.opts.ReplaceAttr != nil {
		a = h.opts.ReplaceAttr(groups, a)
		a.Value = a.Value.Resolve()
	}
	key := strings.TrimSpace(a.Key)
	if key == "" {
		return dst
	}
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(dst, prettyField{key: key, val: a.Value})
}

func orderFields(in []prettyField) []prettyField {
	out := make([]prettyField, 0, len(in))
	for _, k := range hoistedKeys {
		for _, f := range in {
			if f.key == k {
				out = append(out, f)
			}
		}
	}
	for _, f := range in {
		if !slices.Contains(hoistedKeys, f.key) && !slices.Contains(trailingKeys, f.key) {
			out = append(out, f)
		}
	}
	for _, k := range trailingKeys {
		for _, f := range in {
			if f.key == k {
				out = append(out, f)
			}
		}
	}
	return out
}

func displayKey(k string) string {
	if s, ok := shortKeys[k]; ok {
		return s
	}
	return k
}

// event splits "session.refresh.rotated" into a colored domain and the action.
func (h *prettyHandler) event(msg string) string {
	domain, action, ok := strings.Cut(msg, ".")
	if !ok {
		return paint(msg, ansiBright, h.color)
	}
	return paint(domain, domainColor(domain), h.color) + " " + paint(action, ansiBright, h.color)
}

func domainColor(domain string) string {
	switch domain {
	case "session":
		return ansiBlue
	case "auth":
		return ansiCyan
	case "retention":
		return ansiMagenta
	case "http":
		return ansiGreen
	default:
		return ansiDim
	}
}

func (h *prettyHandler) render(f prettyField) string {
	v := f.val
	switch f.key {
	case "principal_id", "lineage_id", "record_id", "previous_id":
		return paint(quoteIfNeeded(valueToString(v)), ansiCyan, h.color)
	case "err", "cause":
		return paint(strconv.Quote(valueToString(v)), ansiRed, h.color)
	case "method":
		m := strings.ToUpper(strings.TrimSpace(v.String()))
		return paint(m, methodColor(m), h.color)
	case "status":
		if n, ok := valueToInt64(v); ok {
			return paint(strconv.FormatInt(n, 10), statusColor(int(n)), h.color)
		}
	case "status_class":
		return colorizeStatusClass(strings.TrimSpace(v.String()), h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	case "result", "kind", "reason":
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), h.color)
	}
	return quoteIfNeeded(valueToString(v))
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paint("ERROR", ansiRed, color)
	case level >= slog.LevelWarn:
		return paint("WARN ", ansiYellow, color)
	case level < slog.LevelInfo:
		return paint("DEBUG", ansiMagenta, color)
	default:
		return paint("INFO ", ansiBlue, color)
	}
}

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func paint(s, code string, color bool) string {
	if !color || code == "" {
		return s
	}
	return code + s + ansiReset
}

func methodColor(m string) string {
	switch m {
	case "GET":
		return ansiGreen
	case "POST":
		return ansiBlue
	case "DELETE":
		return ansiRed
	default:
		return ansiYellow
	}
}

func colorizeStatusClass(class string, color bool) string {
	if class == "" {
		return `""`
	}
	code := 0
	if c := class[0]; c >= '1' && c <= '5' {
		code = int(c-'0') * 100
	}
	return paint(class, statusColor(code), color)
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	case code >= 200:
		return ansiGreen
	default:
		return ""
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return paint(s, ansiRed, color)
	case ms >= 250:
		return paint(s, ansiYellow, color)
	default:
		return paint(s, ansiDim, color)
	}
}

// colorizeResult colors request results, session error kinds and rejection reasons.
func colorizeResult(v string, color bool) string {
	switch v {
	case "":
		return `""`
	case "success", "ok":
		return paint(v, ansiGreen, color)
	case "server_error", "store_unavailable":
		return paint(v, ansiRed, color)
	case "client_error", "reused_token", "expired", "unknown_record", "bad_password", "inactive":
		return paint(v, ansiYellow, color)
	default:
		return v
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		u := v.Uint64()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
