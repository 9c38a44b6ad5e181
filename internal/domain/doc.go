// Package domain defines core data models, the error taxonomy and the
// collaborator contracts shared across the app. It contains plain types
// (wire/state) and interfaces only.
package domain
