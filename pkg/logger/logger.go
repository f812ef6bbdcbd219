package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with ledger-specific helpers
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance
func New(level string) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// WithFields creates a new logger entry with the specified fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithComponent creates a new logger entry with a component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// WithPrincipal creates a new logger entry with the acting principal field
func (l *Logger) WithPrincipal(principal string) *logrus.Entry {
	return l.Logger.WithField("principal", principal)
}

// Audit logs audit events with structured format
func (l *Logger) Audit(principal, action, resource string, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"audit":     true,
		"principal": principal,
		"action":    action,
		"resource":  resource,
		"success":   success,
		"details":   details,
	})

	if success {
		entry.Info("Audit event")
	} else {
		entry.Warn("Audit event failed")
	}
}

// PHIAccess logs medical-record access decisions with security context
func (l *Logger) PHIAccess(principal, patientPrincipal, action, recordID string, granted bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"phi_access": true,
		"principal":  principal,
		"patient":    patientPrincipal,
		"action":     action,
		"record_id":  recordID,
		"granted":    granted,
		"details":    details,
		"sensitive":  true,
	})

	if granted {
		entry.Info("PHI access granted")
	} else {
		entry.Warn("PHI access denied")
	}
}

// Security logs security-relevant events
func (l *Logger) Security(event string, principal string, details map[string]interface{}) {
	l.Logger.WithFields(logrus.Fields{
		"security":  true,
		"event":     event,
		"principal": principal,
		"details":   details,
	}).Warn("Security event")
}

// Settlement logs marketplace fund movements
func (l *Logger) Settlement(principal, poolRef string, amount uint64, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"settlement": true,
		"principal":  principal,
		"pool_ref":   poolRef,
		"amount":     amount,
		"success":    success,
		"details":    details,
	})

	if success {
		entry.Info("Escrow settlement completed")
	} else {
		entry.Error("Escrow settlement failed")
	}
}
