package domain

import "sync"

// ParticipantInfo is the public description of a participant, as relayed to
// other room members.
type ParticipantInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// TransportEntry associates an engine transport with its send/receive flag.
type TransportEntry struct {
	Transport Transport
	Sender    bool
}

// Participant is one client's session state within a room. It owns the
// transports, producers and consumers created on its behalf. All access goes
// through the owning Room's methods.
type Participant struct {
	ID   string
	Name string
	Role string

	Transports map[string]*TransportEntry
	Producers  map[string]Producer
	Consumers  map[string]Consumer
}

func NewParticipant(id, name, role string) *Participant {
	return &Participant{
		ID:         id,
		Name:       name,
		Role:       role,
		Transports: make(map[string]*TransportEntry),
		Producers:  make(map[string]Producer),
		Consumers:  make(map[string]Consumer),
	}
}

func (p *Participant) Info() ParticipantInfo {
	return ParticipantInfo{ID: p.ID, Name: p.Name, Role: p.Role}
}

// Room is a named group of participants sharing one router. The participant
// map is guarded by the room mutex; every accessor that hands data out returns
// a snapshot so broadcast fan-out never iterates the live map.
type Room struct {
	ID     string
	Router Router

	mu           sync.RWMutex
	participants map[string]*Participant
}

func NewRoom(id string, router Router) *Room {
	return &Room{
		ID:           id,
		Router:       router,
		participants: make(map[string]*Participant),
	}
}

// AddParticipant inserts the participant and returns a snapshot of the other
// members present at insertion time.
func (r *Room) AddParticipant(p *Participant) []ParticipantInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	others := make([]ParticipantInfo, 0, len(r.participants))
	for _, existing := range r.participants {
		others = append(others, existing.Info())
	}
	r.participants[p.ID] = p
	return others
}

// RemoveParticipant deletes the participant and returns it together with the
// IDs of the remaining members. Removing an absent participant returns nil,
// which keeps the disconnect path idempotent.
func (r *Room) RemoveParticipant(clientID string) (*Participant, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[clientID]
	if !ok {
		return nil, nil
	}
	delete(r.participants, clientID)

	remaining := make([]string, 0, len(r.participants))
	for id := range r.participants {
		remaining = append(remaining, id)
	}
	return p, remaining
}

// ParticipantIDs returns a snapshot of member IDs, skipping any in exclude.
func (r *Room) ParticipantIDs(exclude ...string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		if _, excluded := skip[id]; !excluded {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// AddTransport stores a transport under the participant. It reports false if
// the participant has already left the room.
func (r *Room) AddTransport(clientID string, t Transport, sender bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[clientID]
	if !ok {
		return false
	}
	p.Transports[t.ID()] = &TransportEntry{Transport: t, Sender: sender}
	return true
}

// Transport looks up one of the participant's transports.
func (r *Room) Transport(clientID, transportID string) (*TransportEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[clientID]
	if !ok {
		return nil, false
	}
	entry, ok := p.Transports[transportID]
	return entry, ok
}

func (r *Room) AddProducer(clientID string, producer Producer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[clientID]
	if !ok {
		return false
	}
	p.Producers[producer.ID()] = producer
	return true
}

func (r *Room) AddConsumer(clientID string, consumer Consumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[clientID]
	if !ok {
		return false
	}
	p.Consumers[consumer.ID()] = consumer
	return true
}

// Consumer looks up one of the participant's consumers.
func (r *Room) Consumer(clientID, consumerID string) (Consumer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[clientID]
	if !ok {
		return nil, false
	}
	c, ok := p.Consumers[consumerID]
	return c, ok
}

// FindProducer scans the room for a producer by ID and returns it together
// with the owning participant's ID.
func (r *Room) FindProducer(producerID string) (Producer, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, p := range r.participants {
		if producer, ok := p.Producers[producerID]; ok {
			return producer, id, true
		}
	}
	return nil, "", false
}
