// Package logging builds the zap logger shared by the server and the CLI.
package logging

import "go.uber.org/zap"

// New returns a development logger for "development" and a JSON production
// logger for anything else.
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
