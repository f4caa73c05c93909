package inmemorystore

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/nodestore"
)

// Store is an in-memory implementation of nodestore.Store.
//
// The store keeps:
//   - nodes: runtime state and progress per node id
//   - weights: the plan weight per node id, used for overall progress
//   - outputs: execution outputs of completed nodes
//   - errors: failures of errored nodes
type Store struct {
	mu          sync.Mutex
	initialized bool
	nodes       map[string]*nodestore.NodeState
	weights     map[string]float64
	totalWeight float64
	overall     float64
	version     uint64
	outputs     map[string]any
	errors      map[string]error

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(nodestore.Snapshot)
}

// New creates a new, empty in-memory node state store.
func New() *Store {
	return &Store{
		nodes:   make(map[string]*nodestore.NodeState),
		weights: make(map[string]float64),
		outputs: make(map[string]any),
		errors:  make(map[string]error),
		subs:    make(map[int]func(nodestore.Snapshot)),
	}
}

var _ nodestore.Store = (*Store)(nil)

// InitializeGraph resets the store to the given plan.
func (s *Store) InitializeGraph(ctx context.Context, graph *model.ExecutionGraph) error {
	if graph == nil {
		return fmt.Errorf("initialize graph: %w", nodestore.ErrNotInitialized)
	}

	s.mu.Lock()
	s.initialized = true
	s.nodes = make(map[string]*nodestore.NodeState, len(graph.Weights))
	s.weights = make(map[string]float64, len(graph.Weights))
	s.outputs = make(map[string]any)
	s.errors = make(map[string]error)
	s.totalWeight = 0
	s.overall = 0
	for _, id := range graph.NodeIDs() {
		s.nodes[id] = &nodestore.NodeState{State: nodestore.StatePending}
		s.weights[id] = graph.Weight(id)
		s.totalWeight += graph.Weight(id)
	}
	s.version++
	total := s.totalWeight
	snap := s.snapshotLocked()
	s.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Store initialized.", "nodes", len(snap.Nodes), "totalWeight", total)
	s.notify(snap)
	return nil
}

// UpdateNodeState applies a patch to one node.
func (s *Store) UpdateNodeState(ctx context.Context, id string, patch nodestore.Patch) error {
	s.mu.Lock()
	ns, err := s.nodeLocked(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if ns.State == nodestore.StateError {
		s.mu.Unlock()
		ctxlog.FromContext(ctx).Debug("Ignoring update to frozen node.", "nodeID", id)
		return nil
	}

	changed := false
	if patch.State != nil && *patch.State != ns.State {
		ns.State = *patch.State
		changed = true
	}
	switch {
	case ns.State == nodestore.StateCompleted:
		if ns.Progress != 100 {
			ns.Progress = 100
			changed = true
		}
	case ns.State == nodestore.StateError:
		// Entering error freezes the node at its last observed progress.
	case patch.Progress != nil:
		p := clamp(*patch.Progress)
		if p > ns.Progress {
			ns.Progress = p
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return nil
	}

	s.recomputeLocked()
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// GetState returns a snapshot of the store.
func (s *Store) GetState(ctx context.Context) nodestore.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// NodeState returns the runtime record of one node.
func (s *Store) NodeState(ctx context.Context, id string) (nodestore.NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, err := s.nodeLocked(id)
	if err != nil {
		return nodestore.NodeState{}, err
	}
	return *ns, nil
}

// SetOutput records the successful output of a node.
func (s *Store) SetOutput(ctx context.Context, id string, output any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.nodeLocked(id); err != nil {
		return err
	}
	s.outputs[id] = output
	return nil
}

// GetOutput retrieves the recorded output of a completed node.
func (s *Store) GetOutput(ctx context.Context, id string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.nodeLocked(id); err != nil {
		return nil, false, err
	}
	out, ok := s.outputs[id]
	return out, ok, nil
}

// SetError records the failure error of a node.
func (s *Store) SetError(ctx context.Context, id string, nodeErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.nodeLocked(id); err != nil {
		return err
	}
	s.errors[id] = nodeErr
	return nil
}

// GetError retrieves the recorded error of a failed node.
func (s *Store) GetError(ctx context.Context, id string) (error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.nodeLocked(id); err != nil {
		return nil, err
	}
	return s.errors[id], nil
}

// Subscribe registers fn to receive a snapshot after every change.
func (s *Store) Subscribe(fn func(nodestore.Snapshot)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
		})
	}
}

func (s *Store) notify(snap nodestore.Snapshot) {
	s.subMu.Lock()
	fns := make([]func(nodestore.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) nodeLocked(id string) (*nodestore.NodeState, error) {
	if !s.initialized {
		return nil, nodestore.ErrNotInitialized
	}
	ns, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", nodestore.ErrUnknownNode, id)
	}
	return ns, nil
}

// recomputeLocked refreshes the cached overall progress. The cached value
// only moves forward.
func (s *Store) recomputeLocked() {
	if s.totalWeight <= 0 {
		return
	}
	var sum float64
	for id, ns := range s.nodes {
		sum += s.weights[id] * ns.Progress
	}
	if p := clamp(sum / s.totalWeight); p > s.overall {
		s.overall = p
	}
}

func (s *Store) snapshotLocked() nodestore.Snapshot {
	nodes := make(map[string]nodestore.NodeState, len(s.nodes))
	for id, ns := range s.nodes {
		nodes[id] = *ns
	}
	return nodestore.Snapshot{
		Nodes:           nodes,
		OverallProgress: s.overall,
		Version:         s.version,
	}
}

// Outputs returns a copy of every recorded output.
func (s *Store) Outputs() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.outputs)
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
