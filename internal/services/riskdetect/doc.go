// Package riskdetect classifies transcribed text for legal risk using a
// local Ollama model. Model answers are free-form, so the package
// normalizes them into one of three fixed Thai verdicts.
package riskdetect
