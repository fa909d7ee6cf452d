// Package petitionservice implements petition intake inside the
// civic-engagement context.
//
// The module owns admission control per browser fingerprint, abuse screening
// through an external classification model, demographic counter families kept
// consistent with every create, edit and delete, and the reconciliation pass
// that re-screens the pending backlog. Business rules stay in the
// application/domain layers; storage, the model, sessions and the warehouse
// feed sit behind ports.
package petitionservice
