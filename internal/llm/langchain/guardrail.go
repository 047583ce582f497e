package langchain

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go/middleware"
)

const defaultGuardrailVersion = "DRAFT"

// Guardrail names a Bedrock guardrail applied to every model invocation.
// The zero value applies none.
type Guardrail struct {
	ID      string
	Version string
}

// apply registers the guardrail on the client's middleware stack.
func (g Guardrail) apply(o *bedrockruntime.Options) {
	if g.ID == "" {
		return
	}
	o.APIOptions = append(o.APIOptions, func(stack *middleware.Stack) error {
		return stack.Initialize.Add(g.middleware(), middleware.Before)
	})
}

// middleware sets the guardrail on InvokeModel inputs. The model wrapper
// builds those inputs itself, so this is the only place to attach it.
func (g Guardrail) middleware() middleware.InitializeMiddleware {
	version := g.Version
	if version == "" {
		version = defaultGuardrailVersion
	}
	return middleware.InitializeMiddlewareFunc("ApplyBedrockGuardrail",
		func(ctx context.Context, in middleware.InitializeInput, next middleware.InitializeHandler) (middleware.InitializeOutput, middleware.Metadata, error) {
			switch p := in.Parameters.(type) {
			case *bedrockruntime.InvokeModelInput:
				p.GuardrailIdentifier = aws.String(g.ID)
				p.GuardrailVersion = aws.String(version)
			case *bedrockruntime.InvokeModelWithResponseStreamInput:
				p.GuardrailIdentifier = aws.String(g.ID)
				p.GuardrailVersion = aws.String(version)
			}
			return next.HandleInitialize(ctx, in)
		})
}
