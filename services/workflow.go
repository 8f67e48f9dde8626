package services

import (
	"math"

	"educenter_go/services/access"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var workflowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "educenter_workflow_total",
	Help: "Consistency workflow invocations by outcome.",
}, []string{"workflow", "outcome"})

// finish records the outcome of a workflow and passes err through.
func finish(workflow string, fields logrus.Fields, err error) error {
	kind := "ok"
	if err != nil {
		kind = string(KindOf(err))
	}
	workflowTotal.WithLabelValues(workflow, kind).Inc()

	entry := logrus.WithFields(fields).WithField("workflow", workflow)
	switch {
	case err == nil:
		entry.Info("workflow completed")
	case KindOf(err) == KindInternal:
		entry.WithError(err).Error("workflow failed")
	default:
		entry.WithField("reason", err.Error()).Warn("workflow rejected")
	}
	return err
}

// lockScoped loads one in-scope row with SELECT ... FOR UPDATE.
func lockScoped(tx *gorm.DB, e access.Entity, scope access.Scope, dest interface{}, id uint) error {
	return access.FindScoped(tx.Clauses(clause.Locking{Strength: "UPDATE"}), e, scope, dest, id)
}

// lockByID locks a row the caller already reached through an in-scope parent.
func lockByID(tx *gorm.DB, dest interface{}, id uint) error {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(dest, id).Error
}

func lockByField(tx *gorm.DB, dest interface{}, column string, value interface{}) error {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(column+" = ?", value).First(dest).Error
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptrUint(v uint) *uint { return &v }
