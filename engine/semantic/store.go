// Package semantic is the sole owner of all Qdrant operations for the FAQ
// collection: lifecycle, point upserts, similarity search, and scrolling.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anarkh-ai/faq-retrieval/engine/domain"
	"github.com/anarkh-ai/faq-retrieval/pkg/fn"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// upsertBatchSize is how many points go into one upsert RPC. Each batch is
// awaited for durability before the next starts.
const upsertBatchSize = 100

// recreateSettle is the pause between deleting and recreating the
// collection, giving Qdrant time to finish its async teardown.
const recreateSettle = time.Second

// scrollPageSize is how many points one scroll page requests.
const scrollPageSize = 100

// pointsAPI is the subset of pb.PointsClient this store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient this store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
}

// VectorStore holds the gRPC clients for one named collection.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	logger      *slog.Logger
	settle      time.Duration

	// connected memoizes a successful probe; best-effort, a race costs at
	// most a redundant probe.
	mu        sync.Mutex
	connected bool
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string, logger *slog.Logger) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	vs := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, logger)
	vs.conn = conn
	return vs, nil
}

// NewWithClients builds a VectorStore around existing clients. Used by tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, logger *slog.Logger) *VectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{
		points:      points,
		collections: collections,
		collection:  collection,
		logger:      logger,
		settle:      recreateSettle,
	}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// Connect verifies the Qdrant service is reachable. A prior success
// short-circuits; a failure resets the flag so the next call retries.
func (v *VectorStore) Connect(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.connected {
		return nil
	}
	if _, err := v.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		v.connected = false
		return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	v.connected = true
	v.logger.Info("connected to qdrant", "collection", v.collection)
	return nil
}

// EnsureCollection creates the collection if it doesn't exist. An existing
// collection is accepted as-is; its dimension is not verified.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	if err := v.Connect(ctx); err != nil {
		return err
	}
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}
	return v.create(ctx, dims)
}

// RecreateCollection drops the collection and recreates it empty. The delete
// is best-effort: a missing collection is not an error.
func (v *VectorStore) RecreateCollection(ctx context.Context, dims int) error {
	if err := v.Connect(ctx); err != nil {
		return err
	}
	if _, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: v.collection}); err != nil {
		v.logger.Info("collection absent, creating fresh", "collection", v.collection)
	} else {
		v.logger.Info("deleted collection", "collection", v.collection)
		// Qdrant tears the collection down asynchronously.
		select {
		case <-time.After(v.settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return v.create(ctx, dims)
}

func (v *VectorStore) create(ctx context.Context, dims int) error {
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	v.logger.Info("created collection", "collection", v.collection, "dims", dims)
	return nil
}

// UpsertBatch stores one point per FAQ in fixed-size batches. A failed batch
// aborts the call; batches already uploaded stay committed.
func (v *VectorStore) UpsertBatch(ctx context.Context, faqs []domain.FAQ, vectors [][]float32) error {
	if len(faqs) != len(vectors) {
		return fmt.Errorf("%w: %d faqs, %d vectors", domain.ErrCountMismatch, len(faqs), len(vectors))
	}
	if len(faqs) == 0 {
		return nil
	}
	if err := v.Connect(ctx); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(faqs))
	for i, f := range faqs {
		points[i] = pointFor(f, vectors[i])
	}

	wait := true
	batches := fn.Chunk(points, upsertBatchSize)
	for i, batch := range batches {
		if _, err := v.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: v.collection,
			Wait:           &wait,
			Points:         batch,
		}); err != nil {
			return fmt.Errorf("semantic: upsert batch %d/%d: %w", i+1, len(batches), err)
		}
		v.logger.Info("upserted batch", "batch", i+1, "total", len(batches), "points", len(batch))
	}
	return nil
}

// UpsertOne stores a single point, same id derivation and payload as the
// batch path.
func (v *VectorStore) UpsertOne(ctx context.Context, f domain.FAQ, vector []float32) error {
	if err := v.Connect(ctx); err != nil {
		return err
	}
	wait := true
	if _, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{pointFor(f, vector)},
	}); err != nil {
		return fmt.Errorf("semantic: upsert point for faq %s: %w", f.ID, err)
	}
	return nil
}

// Search runs similarity search, delegating ranking and threshold filtering
// to Qdrant. Failures degrade to an empty result set rather than an error.
func (v *VectorStore) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float32) []domain.SearchResult {
	if err := v.Connect(ctx); err != nil {
		v.logger.Warn("search skipped, qdrant unreachable", "err", err)
		return []domain.SearchResult{}
	}

	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		ScoreThreshold: &scoreThreshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		v.logger.Warn("search failed", "err", err)
		return []domain.SearchResult{}
	}

	results := make([]domain.SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := r.GetPayload()
		results[i] = domain.SearchResult{
			FAQID:    payload["faq_id"].GetStringValue(),
			Question: payload["question"].GetStringValue(),
			Answer:   payload["answer"].GetStringValue(),
			Score:    r.GetScore(),
		}
	}
	return results
}

// AllPoints scrolls the whole collection, payload only. The full set is
// accumulated in memory, which is fine for FAQ-sized corpora only.
func (v *VectorStore) AllPoints(ctx context.Context) ([]domain.Point, error) {
	if err := v.Connect(ctx); err != nil {
		return nil, err
	}

	limit := uint32(scrollPageSize)
	var all []domain.Point
	var offset *pb.PointId
	for {
		resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: v.collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("semantic: scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			payload := p.GetPayload()
			all = append(all, domain.Point{
				ID:       p.GetId().GetNum(),
				FAQID:    payload["faq_id"].GetStringValue(),
				Question: payload["question"].GetStringValue(),
				Answer:   payload["answer"].GetStringValue(),
			})
		}
		if resp.GetNextPageOffset() == nil {
			break
		}
		offset = resp.GetNextPageOffset()
	}

	v.logger.Info("scrolled all points", "count", len(all))
	return all, nil
}

// Info returns collection metadata, or nil when the collection or the
// service is unavailable.
func (v *VectorStore) Info(ctx context.Context) *domain.CollectionInfo {
	if err := v.Connect(ctx); err != nil {
		return nil
	}
	resp, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
	if err != nil {
		v.logger.Warn("collection info unavailable", "err", err)
		return nil
	}

	info := resp.GetResult()
	optimizer := "unknown"
	if os := info.GetOptimizerStatus(); os != nil {
		if os.GetOk() {
			optimizer = "ok"
		} else {
			optimizer = os.GetError()
		}
	}
	return &domain.CollectionInfo{
		Name:            v.collection,
		VectorsCount:    info.GetVectorsCount(),
		PointsCount:     info.GetPointsCount(),
		Status:          info.GetStatus().String(),
		OptimizerStatus: optimizer,
	}
}

// pointFor builds the Qdrant point for a FAQ: numeric id derived from the
// FAQ id, payload carrying the canonical fields.
func pointFor(f domain.FAQ, vector []float32) *pb.PointStruct {
	return &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: PointID(f.ID)}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}},
		},
		Payload: map[string]*pb.Value{
			"faq_id":   {Kind: &pb.Value_StringValue{StringValue: f.ID}},
			"question": {Kind: &pb.Value_StringValue{StringValue: f.Question}},
			"answer":   {Kind: &pb.Value_StringValue{StringValue: f.Answer}},
		},
	}
}
