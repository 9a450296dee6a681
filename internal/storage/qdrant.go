package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"ai-interviewer/internal/config"
	"ai-interviewer/internal/logger"
	"ai-interviewer/internal/matching"
	"ai-interviewer/internal/tracing"
	"ai-interviewer/internal/types"
)

var qdrantTracer = otel.Tracer("ai-interviewer/storage/qdrant")

// QdrantPointIDNamespace 由文档ID生成确定性的点ID，同一岗位重复写入会覆盖旧点
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("fd6c72c2-5a33-4b53-8e7c-8298f3f5a7e1"))

// queryOverfetch 多取的结果数，用于在截断前按 docID 稳定排序同分结果
const queryOverfetch = 8

var _ matching.Index = (*Qdrant)(nil)

// Qdrant 通过 REST 接口把岗位向量存入 Qdrant 集合
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	distanceMetric string
	apiKey         string
	httpClient     *http.Client
	logger         zerolog.Logger
}

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithDistanceMetric 设置距离度量
func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distanceMetric = metric
	}
}

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建Qdrant客户端并确保集合存在
func NewQdrant(cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}
	q := &Qdrant{
		endpoint:       cfg.Endpoint,
		collectionName: cfg.Collection,
		vectorSize:     cfg.Dimension,
		distanceMetric: "Cosine",
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: config.GetDuration(cfg.Timeout, 30*time.Second)},
		logger:         logger.Named("qdrant"),
	}
	if q.endpoint == "" {
		q.endpoint = "http://localhost:6333"
	}
	if q.collectionName == "" {
		q.collectionName = "jobs"
	}
	if q.vectorSize <= 0 {
		return nil, fmt.Errorf("qdrant向量维度必须大于0")
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(context.Background()); err != nil {
		return nil, fmt.Errorf("确保集合 '%s' 存在失败: %w", q.collectionName, err)
	}
	q.logger.Info().Str("endpoint", q.endpoint).Str("collection", q.collectionName).Msg("connected to Qdrant")
	return q, nil
}

// PointID 文档ID对应的点ID
func PointID(docID string) string {
	return uuid.NewV5(QdrantPointIDNamespace, docID).String()
}

// ensureCollectionExists 集合不存在时创建，存在但配置不同时只记录警告
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := q.doRequest(ctx, http.MethodGet, "/collections/"+q.collectionName, nil, &info)
	if status == http.StatusNotFound {
		q.logger.Info().Str("collection", q.collectionName).Msg("collection not found, creating")
		return q.createCollection(ctx)
	}
	if err != nil {
		return err
	}

	vectors := info.Result.Config.Params.Vectors
	if vectors.Size != q.vectorSize || vectors.Distance != q.distanceMetric {
		q.logger.Warn().
			Int("existing_size", vectors.Size).
			Str("existing_distance", vectors.Distance).
			Int("expected_size", q.vectorSize).
			Str("expected_distance", q.distanceMetric).
			Msg("collection config mismatch")
	}
	return nil
}

func (q *Qdrant) createCollection(ctx context.Context) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
		"optimizers_config": map[string]interface{}{
			"default_segment_number": 2,
		},
	}
	if _, err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collectionName, body, nil); err != nil {
		return fmt.Errorf("创建集合失败: %w", err)
	}
	return nil
}

// Upsert 写入或覆盖岗位向量，payload 中保存 doc_id 和元数据
func (q *Qdrant) Upsert(ctx context.Context, docID string, vector []float32, metadata map[string]any) error {
	if docID == "" {
		return types.NewInvalidInputError("index_upsert", "empty doc id")
	}
	if len(vector) != q.vectorSize {
		return types.NewInvalidInputError("index_upsert",
			fmt.Sprintf("vector dimension %d does not match index dimension %d", len(vector), q.vectorSize))
	}

	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["doc_id"] = docID

	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{"id": PointID(docID), "vector": vector, "payload": payload},
		},
	}
	_, err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName), body, nil)
	return err
}

// Query 按余弦相似度检索，结果截断到 [0,1] 并按相似度降序、docID 升序排列
func (q *Qdrant) Query(ctx context.Context, vector []float32, k int) ([]types.ScoredDoc, error) {
	if k <= 0 {
		return []types.ScoredDoc{}, nil
	}
	if len(vector) != q.vectorSize {
		return nil, types.NewInvalidInputError("index_query",
			fmt.Sprintf("vector dimension %d does not match index dimension %d", len(vector), q.vectorSize))
	}

	var result struct {
		Result []struct {
			ID      interface{}    `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        k + queryOverfetch,
		"with_payload": true,
	}
	if _, err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collectionName), body, &result); err != nil {
		return nil, err
	}

	docs := make([]types.ScoredDoc, 0, len(result.Result))
	for _, p := range result.Result {
		docID, _ := p.Payload["doc_id"].(string)
		if docID == "" {
			continue
		}
		meta := make(map[string]any, len(p.Payload))
		for key, v := range p.Payload {
			if key != "doc_id" {
				meta[key] = v
			}
		}
		docs = append(docs, types.ScoredDoc{
			DocID:      docID,
			Similarity: matching.ClampSimilarity(p.Score),
			Metadata:   meta,
		})
	}
	return matching.RankTopK(docs, k), nil
}

// doRequest 发送请求并解析 JSON 响应，返回 HTTP 状态码
func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.collection", q.collectionName),
	)

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, err
		}
		reader = bytes.NewReader(jsonBody)
		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	}
	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return 0, err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, tracing.SafeBody(respBody))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return resp.StatusCode, err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return resp.StatusCode, err
		}
	}
	span.SetStatus(codes.Ok, "")
	return resp.StatusCode, nil
}
