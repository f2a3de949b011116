package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for storefront telemetry.
const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrCart names the cart variant (remote, demo).
	AttrCart = attribute.Key("cart")
	// AttrOperation differentiates cart mutations and catalog operations.
	AttrOperation = attribute.Key("operation")
	// AttrResult records the outcome of an operation.
	AttrResult = attribute.Key("result")
	// AttrCurrency stores ISO currency codes.
	AttrCurrency = attribute.Key("currency")
	// AttrStorage labels the snapshot backend in storage metrics.
	AttrStorage = attribute.Key("storage")
)

// Result values shared by checkout and catalog metrics.
const (
	ResultSuccess   = "success"
	ResultUserError = "user_error"
	ResultTimeout   = "timeout"
	ResultFailed    = "failed"
	ResultEmpty     = "empty"
	ResultNotFound  = "not_found"
)

// CartAttributes returns attributes for cart mutation metrics.
func CartAttributes(cart, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrCart.String(cart),
		AttrOperation.String(operation),
	}
}

// CheckoutAttributes returns attributes for checkout outcome metrics.
func CheckoutAttributes(cart, result, currency string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrCart.String(cart),
		AttrResult.String(result),
	}
	if currency != "" {
		attrs = append(attrs, AttrCurrency.String(currency))
	}
	return attrs
}

// OperationResultAttributes returns attributes for operation metrics with result classification.
func OperationResultAttributes(operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}
