// Scheduled audit sweep Lambda entry point
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"invoice-audit-engine/internal/handlers"
	"invoice-audit-engine/internal/utils"
)

func main() {
	_ = utils.InitLogger("info")
	defer utils.Sync()

	handler, err := handlers.NewAuditRunnerHandler()
	if err != nil {
		panic("Failed to create handler: " + err.Error())
	}

	lambda.Start(handler.Handle)
}
