package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/lexbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/platform/vectorstore"
)

const (
	payloadNamespaceKey = "_lex_namespace"
	payloadVectorIDKey  = "_lex_vector_id"
	maxErrorBodyBytes   = 4096
)

var pointIDNamespaceUUID = uuid.MustParse("6b1f0a52-4f7e-4c1e-9a0b-2d8f3c5e7a19")

// Store implements vectorstore.Store on a single qdrant collection. Logical
// namespaces are kept in the point payload and each point id is derived from
// (namespace, vector id) so re-upserting a chunk overwrites it.
type Store struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	cfg     Config

	ensureMu sync.Mutex
	ensured  bool
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func New(log *logger.Logger, cfg Config, httpClient *http.Client) (*Store, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.NamespacePrefix == "" {
		cfg.NamespacePrefix = "lex"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		log:     log.With("component", "QdrantStore", "collection", cfg.Collection),
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		cfg:     cfg,
	}, nil
}

func (s *Store) Provider() string { return "qdrant" }

// EnsureIndex creates the collection on first use and checks that an existing
// one matches the configured dimension and cosine distance.
func (s *Store) EnsureIndex(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}

	var info struct {
		Config struct {
			Params struct {
				Vectors json.RawMessage `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, "ensure_index", http.MethodGet, s.collectionPath(""), nil, &info)
	if isStatus(err, http.StatusNotFound) {
		body := map[string]any{
			"vectors": map[string]any{"size": s.cfg.VectorDim, "distance": "Cosine"},
		}
		if err := s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), body, nil); err != nil {
			return err
		}
		s.log.Info("Created qdrant collection", "dimension", s.cfg.VectorDim)
		s.ensured = true
		return nil
	}
	if err != nil {
		return err
	}

	var vectors struct {
		Size     int    `json:"size"`
		Distance string `json:"distance"`
	}
	if err := json.Unmarshal(info.Config.Params.Vectors, &vectors); err != nil || vectors.Size == 0 {
		return opErr("ensure_index", OperationErrorCollectionMismatch, "collection uses named or unsupported vector params", err)
	}
	if vectors.Size != s.cfg.VectorDim {
		return opErr("ensure_index", OperationErrorCollectionMismatch,
			fmt.Sprintf("collection dimension=%d configured=%d", vectors.Size, s.cfg.VectorDim), nil)
	}
	if !strings.EqualFold(vectors.Distance, "Cosine") {
		return opErr("ensure_index", OperationErrorCollectionMismatch,
			fmt.Sprintf("collection distance=%q, expected Cosine", vectors.Distance), nil)
	}
	s.ensured = true
	return nil
}

func (s *Store) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	ns := s.qualifyNamespace(namespace)
	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return opErr("upsert", OperationErrorValidation, "vector id is required", nil)
		}
		if len(v.Values) != s.cfg.VectorDim {
			return opErr("upsert", OperationErrorValidation,
				fmt.Sprintf("vector %q dimension mismatch: expected=%d got=%d", id, s.cfg.VectorDim, len(v.Values)), nil)
		}
		payload := vectorstore.ClonePayload(v.Metadata)
		payload[payloadNamespaceKey] = ns
		payload[payloadVectorIDKey] = id
		points = append(points, map[string]any{
			"id":      s.pointID(ns, id),
			"vector":  v.Values,
			"payload": payload,
		})
	}
	return s.doJSON(ctx, "upsert", http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (s *Store) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	if len(q) == 0 {
		return nil, opErr("query", OperationErrorValidation, "query vector is required", nil)
	}
	if len(q) != s.cfg.VectorDim {
		return nil, opErr("query", OperationErrorValidation,
			fmt.Sprintf("query dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(q)), nil)
	}
	if topK <= 0 {
		topK = 10
	}
	ns := s.qualifyNamespace(namespace)
	qf, err := s.scopedFilter(ns, filter)
	if err != nil {
		return nil, err
	}

	var items []scoredPoint
	body := map[string]any{
		"vector":       q,
		"limit":        topK,
		"with_payload": true,
		"filter":       qf,
	}
	if err := s.doJSON(ctx, "query", http.MethodPost, s.collectionPath("/points/search"), body, &items); err != nil {
		return nil, err
	}

	out := make([]vectorstore.Match, 0, len(items))
	for _, item := range items {
		id, _ := item.Payload[payloadVectorIDKey].(string)
		if id == "" {
			id = decodePointID(item.ID)
		}
		if id == "" {
			continue
		}
		meta := vectorstore.ClonePayload(item.Payload)
		delete(meta, payloadNamespaceKey)
		delete(meta, payloadVectorIDKey)
		out = append(out, vectorstore.Match{
			ID:       id,
			Score:    vectorstore.ClampScore(item.Score),
			Metadata: meta,
		})
	}
	vectorstore.SortMatches(out)
	return out, nil
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	ns := s.qualifyNamespace(namespace)
	points := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			points = append(points, s.pointID(ns, id))
		}
	}
	if len(points) == 0 {
		return nil
	}
	return s.doJSON(ctx, "delete_ids", http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"points": points}, nil)
}

func (s *Store) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	if len(filter) == 0 {
		return opErr("delete_filter", OperationErrorValidation, "refusing to delete with an empty filter", nil)
	}
	qf, err := s.scopedFilter(s.qualifyNamespace(namespace), filter)
	if err != nil {
		return err
	}
	return s.doJSON(ctx, "delete_filter", http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"filter": qf}, nil)
}

func (s *Store) Stats(ctx context.Context, namespace string) (vectorstore.Stats, error) {
	var info struct {
		PointsCount int64 `json:"points_count"`
	}
	if err := s.doJSON(ctx, "stats", http.MethodGet, s.collectionPath(""), nil, &info); err != nil {
		return vectorstore.Stats{}, err
	}
	qf, err := s.scopedFilter(s.qualifyNamespace(namespace), nil)
	if err != nil {
		return vectorstore.Stats{}, err
	}
	var count struct {
		Count int64 `json:"count"`
	}
	body := map[string]any{"filter": qf, "exact": true}
	if err := s.doJSON(ctx, "stats", http.MethodPost, s.collectionPath("/points/count"), body, &count); err != nil {
		return vectorstore.Stats{}, err
	}
	return vectorstore.Stats{
		Provider:         s.Provider(),
		Dimension:        s.cfg.VectorDim,
		TotalVectors:     info.PointsCount,
		NamespaceVectors: count.Count,
	}, nil
}

func (s *Store) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*maxErrorBodyBytes))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode envelope failed", err)
	}
	if msg := envelopeStatusError(env.Status); msg != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return nil
}

func envelopeStatusError(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if strings.EqualFold(text, "ok") || strings.EqualFold(text, "acknowledged") || strings.EqualFold(text, "completed") {
			return ""
		}
		return fmt.Sprintf("status=%q", text)
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return "status=" + status
}

func isStatus(err error, code int) bool {
	var op *OperationError
	return errors.As(err, &op) && op.StatusCode == code
}

func truncateBody(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		raw = raw[:maxErrorBodyBytes]
	}
	return string(raw)
}

func (s *Store) qualifyNamespace(namespace string) string {
	return s.cfg.NamespacePrefix + ":" + vectorstore.Namespace(namespace)
}

func (s *Store) pointID(qualifiedNS, vectorID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(qualifiedNS+"\x00"+vectorID)).String()
}

func (s *Store) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.cfg.Collection) + suffix
}

// scopedFilter ANDs the namespace condition onto a caller filter.
func (s *Store) scopedFilter(qualifiedNS string, filter map[string]any) (map[string]any, error) {
	translated, err := translateFilter(filter)
	if err != nil {
		return nil, err
	}
	translated.Must = append([]any{matchValue(payloadNamespaceKey, qualifiedNS)}, translated.Must...)
	return translated.asMap(), nil
}

func decodePointID(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

var _ vectorstore.Store = (*Store)(nil)
