// Package monitoring owns the diagnostic logger shared by the analysis
// packages and the CLI.
package monitoring

import "go.uber.org/zap"

// Logf is the package-level diagnostic logger. It defaults to a zap
// production logger at info level but may be replaced by SetLogger or
// UseZap. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = base.Infof

// Warnf is Logf at warning level.
var Warnf func(format string, v ...interface{}) = base.Warnf

var base = defaultLogger()

func defaultLogger() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// SetLogger replaces the package logger at every level. Passing nil will
// set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
	Warnf = f
}

// UseZap routes the package logger through l. A nil l mutes logging.
func UseZap(l *zap.Logger) {
	if l == nil {
		SetLogger(nil)
		return
	}
	s := l.Sugar()
	Logf = s.Infof
	Warnf = s.Warnf
}
