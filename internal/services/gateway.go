package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
	"github.com/asakaida/attrgate/internal/infrastructure/logging"
	"github.com/asakaida/attrgate/internal/repositories"
)

// Methods served by the gateway
const (
	MethodDescribe = "describe"
	MethodGet      = "get"
	MethodSet      = "set"
)

// Fault messages written to clients
const (
	FaultForbidden         = "FORBIDDEN"
	FaultInvalidCredential = "INVALID CREDENTIAL"
	FaultCredentialMissing = "USER NAME OR PASSWORD MISSING"
	FaultBadRequest        = "BAD REQUEST"
	FaultNoDetail          = "Could not find any detail"
	FaultFieldsMissing     = "Either Product ID or attribute is missing"
	FaultCouldNotSet       = "could not set value"
	FaultUnprocessable     = "Could not process you request"

	SuccessModified = "Successfully modified"
)

var errFieldsMissing = fmt.Errorf("%w: productId and attribute are required", apperrors.ErrInvalidInput)

// Fault is the payload of every failed request
type Fault struct {
	Fault string `json:"fault"`
}

// ForbiddenFault is written for writes over an insecure channel
type ForbiddenFault struct {
	Fault  string `json:"fault"`
	Status string `json:"status"`
}

// DescribeEntry is one attribute in a describe response
type DescribeEntry struct {
	ID   string `json:"ID"`
	Type string `json:"type"`
}

// SetSuccess is the payload of a committed set
type SetSuccess struct {
	Success string `json:"Success"`
}

// Request is one gateway call as received from the transport
type Request struct {
	Authorization string // Raw credential header
	Body          []byte
}

// Call is the decoded request body
type Call struct {
	Method    string      `json:"method"`
	ProductID string      `json:"productId"`
	Attribute string      `json:"attribute"`
	Value     interface{} `json:"value"`
}

// Response carries exactly one JSON payload
type Response struct {
	Payload interface{}
}

// CredentialChecker authenticates a raw credential header
type CredentialChecker interface {
	Authenticate(ctx context.Context, rawHeader string) entities.AuthResult
}

// Gateway authenticates a request and dispatches it to describe, get or set
type Gateway struct {
	gate       CredentialChecker
	schemas    SchemaRegistry
	products   repositories.ProductRepository
	accessor   *AttributeAccessor
	entityType string
}

// NewGateway creates a new Gateway serving one entity type
func NewGateway(gate CredentialChecker, schemas SchemaRegistry, products repositories.ProductRepository, accessor *AttributeAccessor, entityType string) *Gateway {
	return &Gateway{
		gate:       gate,
		schemas:    schemas,
		products:   products,
		accessor:   accessor,
		entityType: entityType,
	}
}

// Handle processes one request. Every failure becomes a fault payload.
func (g *Gateway) Handle(ctx context.Context, req Request) Response {
	logger := logging.FromContext(ctx)

	auth := g.gate.Authenticate(ctx, req.Authorization)
	if !auth.Authenticated {
		logger.WithField("reason", auth.Reason.String()).Info("request rejected")
		return faultResponse(authFault(auth.Reason))
	}

	var call Call
	if err := json.Unmarshal(req.Body, &call); err != nil {
		logger.WithError(err).Info("undecodable request body")
		return faultResponse(FaultUnprocessable)
	}

	payload, err := g.dispatch(ctx, &call)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"method":     call.Method,
			"product_id": call.ProductID,
			"attribute":  call.Attribute,
		}).Info("request failed")
		return faultResponse(faultFor(call.Method, err))
	}

	return Response{Payload: payload}
}

func (g *Gateway) dispatch(ctx context.Context, call *Call) (interface{}, error) {
	switch call.Method {
	case MethodDescribe:
		return g.describe(ctx)
	case MethodGet:
		return g.get(ctx, call)
	case MethodSet:
		return g.set(ctx, call)
	case "":
		return nil, apperrors.NewValidationError("method", "is required")
	default:
		return nil, fmt.Errorf("method %q: %w", call.Method, apperrors.ErrUnknownOperation)
	}
}

func (g *Gateway) describe(ctx context.Context) ([]DescribeEntry, error) {
	set, err := g.schemas.Describe(ctx, g.entityType)
	if err != nil {
		return nil, err
	}

	entries := make([]DescribeEntry, 0, set.Len())
	for _, d := range set.Definitions {
		entries = append(entries, DescribeEntry{ID: d.ID, Type: d.Group.String()})
	}
	return entries, nil
}

func (g *Gateway) get(ctx context.Context, call *Call) (map[string]interface{}, error) {
	if call.ProductID == "" || call.Attribute == "" {
		return nil, errFieldsMissing
	}

	set, err := g.schemas.Describe(ctx, g.entityType)
	if err != nil {
		return nil, err
	}

	product, err := g.products.GetByID(ctx, call.ProductID)
	if err != nil {
		return nil, err
	}

	value, err := g.accessor.Get(product, call.Attribute, set)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{call.Attribute: value}, nil
}

func (g *Gateway) set(ctx context.Context, call *Call) (*SetSuccess, error) {
	if call.ProductID == "" || call.Attribute == "" || entities.IsEmptyValue(call.Value) {
		return nil, errFieldsMissing
	}

	set, err := g.schemas.Describe(ctx, g.entityType)
	if err != nil {
		return nil, err
	}

	product, err := g.products.GetByID(ctx, call.ProductID)
	if err != nil {
		return nil, err
	}

	if err := g.accessor.Set(ctx, product, call.Attribute, call.Value, set); err != nil {
		return nil, err
	}

	return &SetSuccess{Success: SuccessModified}, nil
}

func faultResponse(msg string) Response {
	return Response{Payload: Fault{Fault: msg}}
}

func authFault(reason entities.AuthFailureReason) string {
	switch reason {
	case entities.AuthFailureInvalidCredential:
		return FaultInvalidCredential
	case entities.AuthFailureMissing:
		return FaultCredentialMissing
	default:
		return FaultBadRequest
	}
}

// faultFor maps a dispatch error to its wire message.
// A rejected write unwraps to its cause, so it is matched before NotFound.
func faultFor(method string, err error) string {
	switch {
	case errors.Is(err, errFieldsMissing):
		return FaultFieldsMissing
	case apperrors.IsWriteRejected(err):
		return FaultUnprocessable
	case apperrors.IsNotFound(err) || apperrors.IsNoValue(err):
		if method == MethodSet {
			return FaultCouldNotSet
		}
		return FaultNoDetail
	default:
		return FaultUnprocessable
	}
}
