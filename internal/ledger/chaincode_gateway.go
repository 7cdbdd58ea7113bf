package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caremesh/consentd/pkg/config"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/monitoring"
	"github.com/caremesh/consentd/pkg/types"
)

// ChaincodeGateway implements Gateway against the consent-registry
// chaincode. Submissions and queries carry explicit timeouts from
// configuration; a timed-out submission is reported as
// LedgerUnavailable with the outcome marked unknown.
type ChaincodeGateway struct {
	config        *config.LedgerConfig
	logger        *logger.Logger
	metrics       *monitoring.MetricsCollector
	channelID     string
	registryCC    string
	submitTimeout time.Duration
	queryTimeout  time.Duration

	mu        sync.Mutex
	lastBlock uint64
}

// NewChaincodeGateway creates a gateway bound to the configured
// channel and consent-registry chaincode.
func NewChaincodeGateway(cfg *config.LedgerConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) *ChaincodeGateway {
	return &ChaincodeGateway{
		config:        cfg,
		logger:        log,
		metrics:       metrics,
		channelID:     cfg.ChannelName,
		registryCC:    cfg.Chaincodes["consent_registry"],
		submitTimeout: time.Duration(cfg.SubmitTimeout) * time.Second,
		queryTimeout:  time.Duration(cfg.QueryTimeout) * time.Second,
	}
}

// Submit sends a signed state-change transaction to the chaincode
func (g *ChaincodeGateway) Submit(ctx context.Context, kind TxKind, payload interface{}, signer SigningIdentity) (*TxReceipt, error) {
	if signer.ID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "signing identity is required", nil)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to marshal transaction payload", err)
	}

	fn, err := invokeFunctionFor(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.submitTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := g.invokeChaincode(ctx, fn, []string{string(payloadJSON)}, signer)
	duration := time.Since(start)

	if err != nil {
		g.recordSubmit(kind, "failed", duration)
		g.logger.LedgerTransaction(string(kind), "", false, map[string]interface{}{
			"signer": signer.ID,
			"error":  err.Error(),
		})

		if errors.Is(err, context.DeadlineExceeded) {
			// The transaction may still land; record it as
			// submitted with outcome unknown, never retry here.
			unavailable := types.NewLedgerUnavailableError("ledger submission timed out, outcome unknown", err)
			unavailable.Details = map[string]interface{}{"outcome": "unknown", "tx_kind": string(kind)}
			return nil, unavailable
		}
		return nil, types.NewLedgerUnavailableError("ledger submission failed", err)
	}

	g.recordSubmit(kind, "committed", duration)
	g.logger.LedgerTransaction(string(kind), receipt.TxID, true, map[string]interface{}{
		"signer": signer.ID,
		"block":  receipt.Block,
	})

	return receipt, nil
}

// Query reads a fact from the chaincode
func (g *ChaincodeGateway) Query(ctx context.Context, kind FactKind, key string) ([]byte, error) {
	fn, err := queryFunctionFor(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	response, err := g.queryChaincode(ctx, fn, []string{key})
	if err != nil {
		return nil, types.NewLedgerUnavailableError("ledger query failed", err)
	}

	if len(response) == 0 {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("no %s fact for key %s", kind, key))
	}

	return response, nil
}

// QueryAuditByActor retrieves an actor's audit entries, most recent first
func (g *ChaincodeGateway) QueryAuditByActor(ctx context.Context, actorID string, limit int) ([]*types.AuditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	response, err := g.queryChaincode(ctx, "GetAuditTrailByActor", []string{actorID, fmt.Sprintf("%d", limit)})
	if err != nil {
		return nil, types.NewLedgerUnavailableError("audit trail query failed", err)
	}

	var entries []*types.AuditEntry
	if err := json.Unmarshal(response, &entries); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to parse audit trail response", err)
	}

	return entries, nil
}

// HealthCheck reports whether the chaincode answers queries
func (g *ChaincodeGateway) HealthCheck(ctx context.Context) monitoring.HealthCheck {
	check := monitoring.HealthCheck{Details: map[string]interface{}{
		"channel":   g.channelID,
		"chaincode": g.registryCC,
	}}

	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	if _, err := g.queryChaincode(ctx, "Ping", nil); err != nil {
		// A ledger outage degrades the engine but does not take it
		// down: consent and grant workflows keep committing off-chain.
		check.Status = monitoring.HealthStatusDegraded
		check.Message = fmt.Sprintf("Ledger unreachable: %v", err)
		return check
	}

	check.Status = monitoring.HealthStatusHealthy
	check.Message = "Ledger reachable"
	return check
}

func invokeFunctionFor(kind TxKind) (string, error) {
	switch kind {
	case TxConsentGrant:
		return "RecordConsentGrant", nil
	case TxConsentRevoke:
		return "RecordConsentRevoke", nil
	case TxRecordRegister:
		return "RegisterRecordHash", nil
	case TxAuditAppend:
		return "AppendAuditEntry", nil
	default:
		return "", types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown transaction kind: %s", kind), nil)
	}
}

func queryFunctionFor(kind FactKind) (string, error) {
	switch kind {
	case FactConsentStatus:
		return "GetConsentStatus", nil
	case FactRecordHash:
		return "GetRecordHash", nil
	default:
		return "", types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown fact kind: %s", kind), nil)
	}
}

func (g *ChaincodeGateway) recordSubmit(kind TxKind, status string, duration time.Duration) {
	if g.metrics != nil {
		g.metrics.RecordLedgerTransaction(string(kind), status, duration)
	}
}

// invokeChaincode submits a chaincode invocation on the configured
// channel. In a deployed network this goes through the Fabric gateway
// SDK against the configured peers; the endorsement plumbing is
// stubbed here and the receipt carries the simulated block height.
func (g *ChaincodeGateway) invokeChaincode(ctx context.Context, fn string, args []string, signer SigningIdentity) (*TxReceipt, error) {
	g.logger.WithFields(map[string]interface{}{
		"chaincode": g.registryCC,
		"function":  fn,
		"signer":    signer.ID,
	}).Debug("Invoking chaincode")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.lastBlock++
	block := g.lastBlock
	g.mu.Unlock()

	return &TxReceipt{
		TxID:      uuid.New().String(),
		Block:     block,
		Timestamp: time.Now(),
	}, nil
}

// queryChaincode evaluates a read-only chaincode function
func (g *ChaincodeGateway) queryChaincode(ctx context.Context, fn string, args []string) ([]byte, error) {
	g.logger.WithFields(map[string]interface{}{
		"chaincode": g.registryCC,
		"function":  fn,
	}).Debug("Querying chaincode")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch fn {
	case "Ping":
		return []byte(`{"status":"ok"}`), nil
	case "GetConsentStatus", "GetRecordHash":
		// No world state without a peer connection.
		return nil, nil
	case "GetAuditTrailByActor":
		return []byte("[]"), nil
	default:
		return nil, fmt.Errorf("unknown chaincode query function: %s", fn)
	}
}
