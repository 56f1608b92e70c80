package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/ethsig"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errInvalidChainID = errors.New("invalid chain id")

// proofFields are lifted out of the request body. Every other top-level field
// is merged into params so flat callables ({"idToken": ...}) keep working.
var proofFields = map[string]struct{}{
	"authType":     {},
	"identityType": {},
	"requestId":    {},
	"name":         {},
	"keyType":      {},
	"chainId":      {},
	"params":       {},
}

type addressResponse struct {
	Code    int    `json:"code"`
	KeyType string `json:"keyType"`
	Address string `json:"address"`
}

type signMessageRequest struct {
	Message string          `json:"message"`
	ChainID json.RawMessage `json:"chainId"`
}

type signMessageResponse struct {
	Code      int              `json:"code"`
	KeyType   string           `json:"keyType"`
	Signature domain.Signature `json:"signature"`
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := make(map[string]string, len(s.health))
	status := http.StatusOK
	for name, check := range s.health {
		if err := check(c.Request.Context()); err != nil {
			s.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	var keyTypes []string
	if s.signers != nil {
		keyTypes = s.signers.KeyTypes()
	}
	c.JSON(status, gin.H{"status": state, "checks": checks, "keyTypes": keyTypes})
}

func (s *Server) handleIssueProof(c *gin.Context) {
	if s.pipeline == nil {
		writeMessage(c, http.StatusInternalServerError, domain.MsgInternalError)
		return
	}
	subject := s.subject(c)
	req, err := decodeProofRequest(c)
	if err != nil && subject == "" {
		// The pipeline rejects anonymous callers before it reads the body.
		req, err = domain.ProofRequest{}, nil
	}
	if err != nil {
		if errors.Is(err, errInvalidChainID) {
			writeMessage(c, http.StatusBadRequest, domain.MsgInvalidChainID)
			return
		}
		writeMessage(c, http.StatusBadRequest, domain.MsgInvalidProofInput)
		return
	}
	result := s.pipeline.Issue(c.Request.Context(), subject, req)
	c.JSON(result.Code, result)
}

func (s *Server) handleKeyAddress(c *gin.Context) {
	keyType := c.Param("key_type")
	oracle, err := s.signers.Get(keyType)
	if err != nil {
		s.writeError(c, err)
		return
	}
	address, err := oracle.GetAddress(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, addressResponse{Code: http.StatusOK, KeyType: keyType, Address: address})
}

func (s *Server) handleSignMessage(c *gin.Context) {
	if s.subject(c) == "" {
		writeMessage(c, http.StatusUnauthorized, domain.MsgUnauthorizedCall)
		return
	}
	var body signMessageRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		writeMessage(c, http.StatusBadRequest, domain.MsgInvalidMessage)
		return
	}
	chainID, err := parseChainID(body.ChainID)
	if err != nil {
		writeMessage(c, http.StatusBadRequest, domain.MsgInvalidChainID)
		return
	}
	keyType := c.Param("key_type")
	oracle, err := s.signers.Get(keyType)
	if err != nil {
		s.writeError(c, err)
		return
	}
	sig, err := oracle.SignMessage(c.Request.Context(), body.Message, chainID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signMessageResponse{Code: http.StatusOK, KeyType: keyType, Signature: sig})
}

func decodeProofRequest(c *gin.Context) (domain.ProofRequest, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return domain.ProofRequest{}, err
	}

	var req domain.ProofRequest
	var authType string
	for field, dst := range map[string]*string{
		"authType":     &authType,
		"identityType": &req.IdentityType,
		"requestId":    &req.RequestID,
		"name":         &req.Name,
		"keyType":      &req.KeyType,
	} {
		value, ok := raw[field]
		if !ok || isNull(value) {
			continue
		}
		if err := json.Unmarshal(value, dst); err != nil {
			return domain.ProofRequest{}, err
		}
	}
	req.AuthType = domain.AuthType(authType)

	chainID, err := parseChainID(raw["chainId"])
	if err != nil {
		return domain.ProofRequest{}, err
	}
	req.ChainID = chainID

	params := make(map[string]any)
	if value, ok := raw["params"]; ok && !isNull(value) {
		if err := json.Unmarshal(value, &params); err != nil {
			return domain.ProofRequest{}, err
		}
	}
	for field, value := range raw {
		if _, known := proofFields[field]; known {
			continue
		}
		if _, set := params[field]; set {
			continue
		}
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return domain.ProofRequest{}, err
		}
		params[field] = decoded
	}
	if len(params) > 0 {
		req.Params = params
	}
	return req, nil
}

// parseChainID accepts a JSON number or a decimal / 0x-hex string. Absent or
// null means no chain id.
func parseChainID(raw json.RawMessage) (*big.Int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isNull(trimmed) {
		return nil, nil
	}
	text := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, errInvalidChainID
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	id, ok := ethsig.ParseChainID(text)
	if !ok {
		return nil, errInvalidChainID
	}
	return id, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, domain.MsgInternalError
	switch {
	case errors.Is(err, domain.ErrUnknownKeyType):
		status, message = http.StatusBadRequest, domain.MsgInvalidKeyType
	case errors.Is(err, domain.ErrInvalidDigest):
		status, message = http.StatusBadRequest, domain.MsgInvalidMessage
	case errors.Is(err, domain.ErrUnsupportedChainID):
		status, message = http.StatusBadRequest, domain.MsgInvalidChainID
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	writeMessage(c, status, message)
}

func writeMessage(c *gin.Context, status int, message string) {
	c.JSON(status, domain.Result{Code: status, Message: message})
}
