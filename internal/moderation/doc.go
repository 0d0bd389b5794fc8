// Package moderation provides the business boundary for colossus-guard's
// incident pipeline. It defines the Service (detection dispatch, alert
// posting, decision resolution), the Store interface (persistence), and the
// domain models for incidents and their durable alert/action records.
package moderation
