package logger

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// ANSI helpers
const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// Terminal palette: calm forest greens with warm accents
const (
	colorFg       = "\x1b[38;5;223m" // soft beige
	colorGreen    = "\x1b[38;5;108m" // bright leaf green
	colorGreenMid = "\x1b[38;5;107m" // mid forest green
	colorAqua     = "\x1b[38;5;109m" // blue-green
	colorOrange   = "\x1b[38;5;208m" // warm orange
	colorYellow   = "\x1b[38;5;179m" // soft yellow
	colorRed      = "\x1b[38;5;167m" // warm red
	colorRedBg    = "\x1b[48;5;52m"
	colorYellowBg = "\x1b[48;5;58m"
)

// bracketPattern matches contexts like [run:XXX] or [reaper]
var bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// colorComponent picks a stable color per component name for visual grouping
func colorComponent(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	switch hash % 3 {
	case 0:
		return colorGreen
	case 1:
		return colorGreenMid
	default:
		return colorOrange
	}
}

// colorMessage picks a base color from message content so related lines
// group visually: run lifecycle green, client traffic aqua, startup deep green
func colorMessage(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "completed") || strings.Contains(lower, "submitted") ||
		strings.Contains(lower, "analysis") || strings.Contains(lower, "run"):
		return colorGreen
	case strings.Contains(lower, "client") || strings.Contains(lower, "connected") ||
		strings.Contains(lower, "websocket") || strings.Contains(lower, "poll"):
		return colorAqua
	case strings.Contains(lower, "starting") || strings.Contains(lower, "started") ||
		strings.Contains(lower, "listening") || strings.Contains(lower, "config"):
		return colorGreenMid
	default:
		return colorFg
	}
}

// colorizeMessage applies context-aware colors to bracketed markers in a
// log message: [run:XXX] in aqua, stage markers like [reaper] in orange.
func colorizeMessage(msg string) string {
	base := colorMessage(msg)

	result := strings.Builder{}
	lastIndex := 0

	matches := bracketPattern.FindAllStringSubmatchIndex(msg, -1)
	for _, match := range matches {
		if textBefore := msg[lastIndex:match[0]]; textBefore != "" {
			result.WriteString(base)
			result.WriteString(textBefore)
			result.WriteString(colorReset)
		}

		content := msg[match[2]:match[3]]
		color := colorOrange
		if strings.HasPrefix(content, "run:") {
			color = colorAqua
		}

		result.WriteString(color)
		result.WriteString(msg[match[0]:match[1]])
		result.WriteString(colorReset)

		lastIndex = match[1]
	}

	if remaining := msg[lastIndex:]; remaining != "" {
		result.WriteString(base)
		result.WriteString(remaining)
		result.WriteString(colorReset)
	}

	return result.String()
}

// minimalEncoder implements a calm, compact console encoder
// Format: "13:04:35  r.orchestrator  Run completed  a1b2c3d4 483ms"
type minimalEncoder struct {
	zapcore.Encoder // Embed a base encoder for field serialization
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{Encoder: enc.Encoder.Clone()}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := buffer.NewPool().Get()

	final.AppendString(colorGreenMid)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level: only show for WARN/ERROR with bold + background
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorComponent(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorizeMessage(ent.Message))

	if len(fields) > 0 {
		final.AppendString("  ")
		final.AppendString(formatFields(fields))
	}

	final.AppendString("\n")
	return final, nil
}

// levelColorString returns bold + colored + background for WARN/ERROR
func levelColorString(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return colorBold + colorYellowBg + colorYellow + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + colorRedBg + colorRed + "ERROR" + colorReset
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + colorRedBg + colorRed + level.CapitalString() + colorReset
	default:
		return ""
	}
}

// abbreviateName shortens component names: server -> server, run.orchestrator -> r.orchestrator
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// fieldValue renders a zap field as a string. Every field type must produce
// SOME representation; silently dropping a field loses debugging information.
func fieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.BoolType:
		if field.Integer == 1 {
			return "true"
		}
		return "false"
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.DurationType:
		if field.Type == zapcore.DurationType {
			return time.Duration(field.Integer).String()
		}
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type, zapcore.UintptrType:
		return fmt.Sprintf("%d", uint64(field.Integer))
	case zapcore.Float64Type:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", math.Float64frombits(uint64(field.Integer))), "0"), ".")
	case zapcore.Float32Type:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", math.Float32frombits(uint32(field.Integer))), "0"), ".")
	case zapcore.TimeType:
		return time.Unix(0, field.Integer).Format(time.RFC3339)
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok && err != nil {
			return err.Error()
		}
		return ""
	case zapcore.ByteStringType:
		if b, ok := field.Interface.([]byte); ok {
			return string(b)
		}
	}
	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}
	if field.String != "" {
		return field.String
	}
	return fmt.Sprintf("%d", field.Integer)
}

// formatFields renders structured fields compactly. Well-known keys get
// bare colored values (IDs, tickers, durations); everything else falls back
// to key=value so no field is ever discarded.
func formatFields(fields []zapcore.Field) string {
	var values []string

	for _, field := range fields {
		if field.Type == zapcore.SkipType {
			continue
		}
		val := fieldValue(field)

		switch field.Key {
		case FieldRunID, FieldRequestID, FieldClientID:
			if val != "" {
				values = append(values, colorAqua+val+colorReset)
			}
		case FieldTicker:
			if val != "" {
				values = append(values, colorGreen+val+colorReset)
			}
		case FieldDurationMS:
			if val != "" {
				values = append(values, colorGreen+val+colorReset+"ms")
			}
		case FieldError:
			if val != "" {
				values = append(values, colorRed+"error="+val+colorReset)
			}
		default:
			if field.Type == zapcore.ErrorType {
				if val != "" {
					values = append(values, colorRed+"error="+val+colorReset)
				}
				continue
			}
			values = append(values, colorFg+field.Key+"="+colorReset+val)
		}
	}

	return strings.Join(values, " ")
}
