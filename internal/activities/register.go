package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListBooksActivity)
	w.RegisterActivity(a.ReconcileBookActivity)
	w.RegisterActivity(a.SweepGhostHeadwordsActivity)
	w.RegisterActivity(a.WriteCorpusSummaryActivity)
}
