package approval

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the approval API routes.
func NewRouter(svc *Service, audit *AuditStore) chi.Router {
	r := chi.NewRouter()

	r.Route("/approvals", func(r chi.Router) {
		r.Get("/", listApprovalsHandler(svc))
		r.Post("/", createApprovalsHandler(svc))
		r.Get("/count", countApprovalsHandler(svc))
		r.Get("/{id}", getApprovalHandler(svc))
		r.Post("/{id}/respond", respondHandler(svc))
	})

	r.Route("/subjects/{kind}/{id}", func(r chi.Router) {
		r.Delete("/approvals", deleteSubjectApprovalsHandler(svc))
		if audit != nil {
			r.Get("/events", listSubjectEventsHandler(audit))
		}
	})

	return r
}
