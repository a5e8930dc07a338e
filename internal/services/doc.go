// Package services defines the error taxonomy shared by the processing
// services and helpers for classifying failures.
package services
