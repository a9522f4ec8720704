package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/anarkh-ai/faq-retrieval/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// --- Mocks ---

type mockPoints struct {
	upsertReqs []*pb.UpsertPoints
	upsertErrs []error // error for the nth Upsert call, nil past the end
	searchResp *pb.SearchResponse
	searchErr  error
	scrollResp []*pb.ScrollResponse
	scrollErr  error
	scrollCall int
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	call := len(m.upsertReqs)
	m.upsertReqs = append(m.upsertReqs, in)
	if call < len(m.upsertErrs) && m.upsertErrs[call] != nil {
		return nil, m.upsertErrs[call]
	}
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Scroll(_ context.Context, _ *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	if m.scrollErr != nil {
		return nil, m.scrollErr
	}
	resp := m.scrollResp[m.scrollCall]
	m.scrollCall++
	return resp, nil
}

type mockCollections struct {
	listCalls  int
	listErr    error
	listResp   *pb.ListCollectionsResponse
	createErr  error
	createReqs []*pb.CreateCollection
	deleteErr  error
	deleteReqs []*pb.DeleteCollection
	getResp    *pb.GetCollectionInfoResponse
	getErr     error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.listResp != nil {
		return m.listResp, nil
	}
	return &pb.ListCollectionsResponse{}, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.createReqs = append(m.createReqs, in)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (m *mockCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.deleteReqs = append(m.deleteReqs, in)
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (m *mockCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return m.getResp, m.getErr
}

func newTestStore(points *mockPoints, cols *mockCollections) *VectorStore {
	vs := NewWithClients(points, cols, "test", nil)
	vs.settle = 0
	return vs
}

func nFAQs(n int) ([]domain.FAQ, [][]float32) {
	faqs := make([]domain.FAQ, n)
	vecs := make([][]float32, n)
	for i := range faqs {
		faqs[i] = domain.FAQ{ID: string(rune('a' + i%26)), Question: "q", Answer: "a"}
		vecs[i] = []float32{0.1, 0.2}
	}
	return faqs, vecs
}

// --- Tests ---

func TestConnect_Memoized(t *testing.T) {
	cols := &mockCollections{}
	vs := newTestStore(&mockPoints{}, cols)

	ctx := context.Background()
	if err := vs.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := vs.Connect(ctx); err != nil {
		t.Fatalf("Connect again: %v", err)
	}
	if cols.listCalls != 1 {
		t.Fatalf("expected 1 probe, got %d", cols.listCalls)
	}
}

func TestConnect_FailureRetries(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("refused")}
	vs := newTestStore(&mockPoints{}, cols)

	ctx := context.Background()
	if err := vs.Connect(ctx); !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}

	cols.listErr = nil
	if err := vs.Connect(ctx); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if cols.listCalls != 2 {
		t.Fatalf("expected 2 probes, got %d", cols.listCalls)
	}
}

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "test"}},
		},
	}
	vs := newTestStore(&mockPoints{}, cols)
	if err := vs.EnsureCollection(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols.createReqs) != 0 {
		t.Fatal("existing collection must not be recreated")
	}
}

func TestEnsureCollection_Creates(t *testing.T) {
	cols := &mockCollections{}
	vs := newTestStore(&mockPoints{}, cols)
	if err := vs.EnsureCollection(context.Background(), 128); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols.createReqs) != 1 {
		t.Fatalf("expected 1 create, got %d", len(cols.createReqs))
	}
	params := cols.createReqs[0].GetVectorsConfig().GetParams()
	if params.GetSize() != 128 {
		t.Fatalf("expected size 128, got %d", params.GetSize())
	}
	if params.GetDistance() != pb.Distance_Cosine {
		t.Fatalf("expected cosine distance, got %v", params.GetDistance())
	}
}

func TestEnsureCollection_CreateError(t *testing.T) {
	cols := &mockCollections{createErr: errors.New("create fail")}
	vs := newTestStore(&mockPoints{}, cols)
	if err := vs.EnsureCollection(context.Background(), 4); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecreateCollection(t *testing.T) {
	cols := &mockCollections{}
	vs := newTestStore(&mockPoints{}, cols)
	if err := vs.RecreateCollection(context.Background(), 64); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols.deleteReqs) != 1 || len(cols.createReqs) != 1 {
		t.Fatalf("expected delete then create, got %d deletes %d creates", len(cols.deleteReqs), len(cols.createReqs))
	}
}

func TestRecreateCollection_AbsentCollection(t *testing.T) {
	// Delete failing (collection absent) must not abort the recreate.
	cols := &mockCollections{deleteErr: errors.New("not found")}
	vs := newTestStore(&mockPoints{}, cols)
	if err := vs.RecreateCollection(context.Background(), 64); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols.createReqs) != 1 {
		t.Fatal("expected create despite failed delete")
	}
}

func TestUpsertBatch_CountMismatch(t *testing.T) {
	vs := newTestStore(&mockPoints{}, &mockCollections{})
	faqs, _ := nFAQs(3)
	err := vs.UpsertBatch(context.Background(), faqs, [][]float32{{1}})
	if !errors.Is(err, domain.ErrCountMismatch) {
		t.Fatalf("expected ErrCountMismatch, got %v", err)
	}
}

func TestUpsertBatch_Empty(t *testing.T) {
	cols := &mockCollections{}
	vs := newTestStore(&mockPoints{}, cols)
	if err := vs.UpsertBatch(context.Background(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.listCalls != 0 {
		t.Fatal("empty upsert must not touch the service")
	}
}

func TestUpsertBatch_SplitsInto100s(t *testing.T) {
	points := &mockPoints{}
	vs := newTestStore(points, &mockCollections{})
	faqs, vecs := nFAQs(250)
	if err := vs.UpsertBatch(context.Background(), faqs, vecs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points.upsertReqs) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(points.upsertReqs))
	}
	sizes := []int{len(points.upsertReqs[0].GetPoints()), len(points.upsertReqs[1].GetPoints()), len(points.upsertReqs[2].GetPoints())}
	if sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Fatalf("expected batches of 100,100,50, got %v", sizes)
	}
	for i, req := range points.upsertReqs {
		if !req.GetWait() {
			t.Fatalf("batch %d must be awaited", i)
		}
	}
}

func TestUpsertBatch_SecondBatchFails(t *testing.T) {
	points := &mockPoints{upsertErrs: []error{nil, errors.New("transport down")}}
	vs := newTestStore(points, &mockCollections{})
	faqs, vecs := nFAQs(250)
	if err := vs.UpsertBatch(context.Background(), faqs, vecs); err == nil {
		t.Fatal("expected error from second batch")
	}
	// First batch stays committed; third was never sent.
	if len(points.upsertReqs) != 2 {
		t.Fatalf("expected 2 attempted batches, got %d", len(points.upsertReqs))
	}
}

func TestUpsertOne_DerivedPointID(t *testing.T) {
	points := &mockPoints{}
	vs := newTestStore(points, &mockCollections{})
	f := domain.FAQ{ID: "faq-1", Question: "如何维修电脑？", Answer: "找售后人员进行维修"}
	if err := vs.UpsertOne(context.Background(), f, []float32{0.1, 0.2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points.upsertReqs) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(points.upsertReqs))
	}
	pt := points.upsertReqs[0].GetPoints()[0]
	if pt.GetId().GetNum() != PointID("faq-1") {
		t.Fatalf("point id %d does not match derived id %d", pt.GetId().GetNum(), PointID("faq-1"))
	}
	if pt.GetPayload()["faq_id"].GetStringValue() != "faq-1" {
		t.Fatal("payload faq_id mismatch")
	}
	if pt.GetPayload()["question"].GetStringValue() != f.Question {
		t.Fatal("payload question mismatch")
	}
}

func TestUpsertOne_SameIDOverwritesSamePoint(t *testing.T) {
	points := &mockPoints{}
	vs := newTestStore(points, &mockCollections{})
	ctx := context.Background()
	f := domain.FAQ{ID: "stable", Question: "q", Answer: "a"}
	if err := vs.UpsertOne(ctx, f, []float32{1}); err != nil {
		t.Fatal(err)
	}
	f.Answer = "updated"
	if err := vs.UpsertOne(ctx, f, []float32{2}); err != nil {
		t.Fatal(err)
	}
	first := points.upsertReqs[0].GetPoints()[0].GetId().GetNum()
	second := points.upsertReqs[1].GetPoints()[0].GetId().GetNum()
	if first != second {
		t.Fatalf("same faq id mapped to different points: %d vs %d", first, second)
	}
}

func TestSearch_MapsResults(t *testing.T) {
	points := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Score: 0.92,
					Payload: map[string]*pb.Value{
						"faq_id":   {Kind: &pb.Value_StringValue{StringValue: "1"}},
						"question": {Kind: &pb.Value_StringValue{StringValue: "如何维修电脑？"}},
						"answer":   {Kind: &pb.Value_StringValue{StringValue: "找售后人员进行维修"}},
					},
				},
			},
		},
	}
	vs := newTestStore(points, &mockCollections{})
	results := vs.Search(context.Background(), []float32{0.1}, 5, 0.0)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.FAQID != "1" || r.Score != 0.92 || r.Question != "如何维修电脑？" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestSearch_DegradesToEmpty(t *testing.T) {
	// RPC failure.
	vs := newTestStore(&mockPoints{searchErr: errors.New("rpc fail")}, &mockCollections{})
	if results := vs.Search(context.Background(), []float32{0.1}, 5, 0.0); len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}

	// Connect failure.
	vs = newTestStore(&mockPoints{}, &mockCollections{listErr: errors.New("refused")})
	results := vs.Search(context.Background(), []float32{0.1}, 5, 0.0)
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil results, got %v", results)
	}
}

func TestAllPoints_Paginates(t *testing.T) {
	page := func(ids []uint64, next *pb.PointId) *pb.ScrollResponse {
		resp := &pb.ScrollResponse{NextPageOffset: next}
		for _, id := range ids {
			resp.Result = append(resp.Result, &pb.RetrievedPoint{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: id}},
				Payload: map[string]*pb.Value{
					"faq_id": {Kind: &pb.Value_StringValue{StringValue: "x"}},
				},
			})
		}
		return resp
	}
	points := &mockPoints{
		scrollResp: []*pb.ScrollResponse{
			page([]uint64{1, 2}, &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 2}}),
			page([]uint64{3}, nil),
		},
	}
	vs := newTestStore(points, &mockCollections{})
	all, err := vs.AllPoints(context.Background())
	if err != nil {
		t.Fatalf("AllPoints: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 points, got %d", len(all))
	}
	if points.scrollCall != 2 {
		t.Fatalf("expected 2 scroll pages, got %d", points.scrollCall)
	}
	if all[2].ID != 3 || all[0].FAQID != "x" {
		t.Fatalf("unexpected points: %+v", all)
	}
}

func TestInfo(t *testing.T) {
	vc, pc := uint64(10), uint64(12)
	cols := &mockCollections{
		getResp: &pb.GetCollectionInfoResponse{
			Result: &pb.CollectionInfo{
				Status:          pb.CollectionStatus_Green,
				OptimizerStatus: &pb.OptimizerStatus{Ok: true},
				VectorsCount:    &vc,
				PointsCount:     &pc,
			},
		},
	}
	vs := newTestStore(&mockPoints{}, cols)
	info := vs.Info(context.Background())
	if info == nil {
		t.Fatal("expected info")
	}
	if info.Name != "test" || info.VectorsCount != 10 || info.PointsCount != 12 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.OptimizerStatus != "ok" {
		t.Fatalf("unexpected optimizer status: %s", info.OptimizerStatus)
	}
}

func TestInfo_Unavailable(t *testing.T) {
	cols := &mockCollections{getErr: errors.New("no such collection")}
	vs := newTestStore(&mockPoints{}, cols)
	if info := vs.Info(context.Background()); info != nil {
		t.Fatalf("expected nil info, got %+v", info)
	}
}

func TestClose_NilConn(t *testing.T) {
	vs := NewWithClients(nil, nil, "test", nil)
	if err := vs.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
