package model

import "fmt"

// Stage is the last state the invoice workflow reached
type Stage string

const (
	StageStart            Stage = "start"
	StagePartnerResolved  Stage = "partner_resolved"
	StageProductResolved  Stage = "product_resolved"
	StageHeaderCreated    Stage = "header_created"
	StagePosted           Stage = "posted"
	StageDraftKept        Stage = "draft_kept"
	StageReadBack         Stage = "read_back"
	StageReconcileOK      Stage = "reconcile_ok"
	StageReconcileWarning Stage = "reconcile_warning"
)

// RemoteEffect tells a caller whether retrying is safe
type RemoteEffect string

const (
	// RemoteEffectNone means no invoice was created; a retry is safe
	RemoteEffectNone RemoteEffect = "none"

	// RemoteEffectInvoiceMayExist means an invoice header may exist in the
	// ERP; retrying could create a duplicate
	RemoteEffectInvoiceMayExist RemoteEffect = "invoice_may_exist"
)

// WorkflowError is a fatal workflow failure annotated with how far it got
type WorkflowError struct {
	Step         string
	Stage        Stage
	RemoteEffect RemoteEffect
	InvoiceID    int64
	Cause        error
}

func (e *WorkflowError) Error() string {
	if e.InvoiceID > 0 {
		return fmt.Sprintf("invoice workflow failed at %s after %s (invoice %d, remote effect %s): %v",
			e.Step, e.Stage, e.InvoiceID, e.RemoteEffect, e.Cause)
	}
	return fmt.Sprintf("invoice workflow failed at %s after %s (remote effect %s): %v",
		e.Step, e.Stage, e.RemoteEffect, e.Cause)
}

func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// RetrySafe reports whether the whole request can be re-submitted
func (e *WorkflowError) RetrySafe() bool {
	return e.RemoteEffect == RemoteEffectNone
}

// Code classifies the underlying cause
func (e *WorkflowError) Code() ErrorCode {
	return Classify(e.Cause)
}
