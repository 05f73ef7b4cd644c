// Package logger configures the process-wide zerolog logger and adapts it for
// the libraries that bring their own logging interface (GORM, gocron).
package logger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"
)

// Setup sets the global level and output. Pretty output is meant for local
// development only.
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Gorm routes GORM's query logging through zerolog.
type Gorm struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

// NewGorm picks the GORM verbosity from the zerolog level in effect.
func NewGorm() *Gorm {
	lvl := gormlogger.Warn
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		lvl = gormlogger.Info
	}
	return &Gorm{Level: lvl, SlowThreshold: 200 * time.Millisecond}
}

func (g *Gorm) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.Level = level
	return &cp
}

func (g *Gorm) Info(_ context.Context, msg string, args ...interface{}) {
	if g.Level >= gormlogger.Info {
		log.Info().Str("component", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

func (g *Gorm) Warn(_ context.Context, msg string, args ...interface{}) {
	if g.Level >= gormlogger.Warn {
		log.Warn().Str("component", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

func (g *Gorm) Error(_ context.Context, msg string, args ...interface{}) {
	if g.Level >= gormlogger.Error {
		log.Error().Str("component", "gorm").Msg(fmt.Sprintf(msg, args...))
	}
}

func (g *Gorm) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && g.Level >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		sql, rows := fc()
		log.Error().Str("component", "gorm").Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query failed")
	case g.SlowThreshold > 0 && elapsed > g.SlowThreshold && g.Level >= gormlogger.Warn:
		sql, rows := fc()
		log.Warn().Str("component", "gorm").Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("slow query")
	case g.Level >= gormlogger.Info:
		sql, rows := fc()
		log.Debug().Str("component", "gorm").Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
	}
}

// Gocron satisfies gocron.Logger.
type Gocron struct{}

func (Gocron) Debug(msg string, args ...any) { log.Debug().Str("component", "scheduler").Fields(args).Msg(msg) }
func (Gocron) Info(msg string, args ...any)  { log.Info().Str("component", "scheduler").Fields(args).Msg(msg) }
func (Gocron) Warn(msg string, args ...any)  { log.Warn().Str("component", "scheduler").Fields(args).Msg(msg) }
func (Gocron) Error(msg string, args ...any) { log.Error().Str("component", "scheduler").Fields(args).Msg(msg) }
