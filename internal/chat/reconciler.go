package chat

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"jabbr/internal/broadcast"
	"jabbr/internal/domain"
	"jabbr/internal/models"
	"jabbr/internal/repository"
	"jabbr/internal/ws"
)

// Reconciler is the background sweep that keeps the registry (live truth)
// and the store (durable truth) converging: it touches rows for connections
// that are still alive, backfills rows the store is missing, reclaims zombie
// rows, collapses clientless users to offline, and demotes idle users.
// It is a correctness sweep, not a request path: every failure is logged and
// swallowed so the next run always happens.
type Reconciler struct {
	coord    *Coordinator
	repo     *repository.ChatRepository
	registry *ws.Registry
	emitter  broadcast.Emitter

	interval      time.Duration
	zombieTimeout time.Duration
	idleTimeout   time.Duration

	running int32
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewReconciler(coord *Coordinator, repo *repository.ChatRepository, registry *ws.Registry, emitter broadcast.Emitter, interval, zombieTimeout, idleTimeout time.Duration) *Reconciler {
	return &Reconciler{
		coord:         coord,
		repo:          repo,
		registry:      registry,
		emitter:       emitter,
		interval:      interval,
		zombieTimeout: zombieTimeout,
		idleTimeout:   idleTimeout,
		stop:          make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		r.Check()
		for {
			select {
			case <-ticker.C:
				r.Check()
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *Reconciler) Stop() {
	close(r.stop)
	r.wg.Wait()
}

// Check runs one sweep. Skipped if the previous run hasn't finished; the
// ticker keeps its fixed schedule regardless of the outcome.
func (r *Reconciler) Check() {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&r.running, 0)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("presence: check panicked: %v", rec)
		}
	}()

	r.updatePresence()
	r.removeZombies()
	r.removeOfflineUsers()
	r.checkUserStatus()
}

// updatePresence touches the store row of every connection the registry
// reports live, and synthesizes rows for connections the store has never
// seen. This is the drift-healing path.
func (r *Reconciler) updatePresence() {
	live := r.registry.AllConnections()
	if len(live) == 0 {
		return
	}
	now := time.Now()

	known, err := r.repo.ExistingClientIDs(live)
	if err != nil {
		log.Printf("presence: list known clients: %v", err)
		return
	}
	knownSet := make(map[string]bool, len(known))
	for _, id := range known {
		knownSet[id] = true
	}

	err = r.repo.InTx(func(tx *repository.ChatRepository) error {
		if err := tx.TouchClientActivity(known, now); err != nil {
			return err
		}
		for _, id := range live {
			if knownSet[id] {
				continue
			}
			userID, ok := r.registry.UserForConnection(id)
			if !ok {
				continue
			}
			user, err := tx.GetUserByID(userID)
			if err != nil {
				log.Printf("presence: connection %s tracked for unknown user %d", id, userID)
				continue
			}
			log.Printf("presence: connection %s exists but isn't tracked", id)
			if err := tx.AddClient(&models.Client{
				ID:                 id,
				UserID:             userID,
				LastActivity:       now,
				LastClientActivity: user.LastActivity,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("presence: update presence: %v", err)
	}
}

// removeZombies deletes client rows whose last activity is older than the
// staleness threshold: connections the store believes are live but the
// transport dropped without a clean disconnect.
func (r *Reconciler) removeZombies() {
	zombies, err := r.repo.ClientsOlderThan(time.Now().Add(-r.zombieTimeout))
	if err != nil {
		log.Printf("presence: list zombies: %v", err)
		return
	}
	if len(zombies) == 0 {
		return
	}
	err = r.repo.InTx(func(tx *repository.ChatRepository) error {
		for _, z := range zombies {
			log.Printf("presence: removed zombie connection %s", z.ID)
			if err := tx.RemoveClient(z.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("presence: remove zombies: %v", err)
	}
}

// removeOfflineUsers flips users with zero remaining clients to offline and
// emits one leave per user per room, batched by room.
func (r *Reconciler) removeOfflineUsers() {
	users, err := r.repo.OnlineUsersWithNoClients()
	if err != nil {
		log.Printf("presence: list clientless users: %v", err)
		return
	}

	var offline []*models.User
	for i := range users {
		user := &users[i]
		unlock := r.coord.lockUser(user.ID)
		count, err := r.repo.ClientCount(user.ID)
		if err == nil && count == 0 {
			err = r.repo.InTx(func(tx *repository.ChatRepository) error {
				return tx.SetUserStatus(user.ID, domain.StatusOffline)
			})
			if err == nil {
				log.Printf("presence: %s has no clients, marking offline", user.Name)
				user.Status = domain.StatusOffline
				offline = append(offline, user)
			}
		}
		if err != nil {
			log.Printf("presence: mark %s offline: %v", user.Name, err)
		}
		unlock()
	}

	for room, group := range groupByRoom(offline) {
		for _, uv := range group {
			r.emitter.ToRoom(room, broadcast.EventLeave, uv, room)
		}
	}
}

// checkUserStatus demotes users idle past the threshold to inactive, one
// markInactive event per affected room carrying the whole batch.
func (r *Reconciler) checkUserStatus() {
	users, err := r.repo.OnlineUsersIdleLongerThan(time.Now().Add(-r.idleTimeout))
	if err != nil {
		log.Printf("presence: list idle users: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}

	var inactive []*models.User
	err = r.repo.InTx(func(tx *repository.ChatRepository) error {
		for i := range users {
			user := &users[i]
			if err := tx.SetUserStatus(user.ID, domain.StatusInactive); err != nil {
				return err
			}
			user.Status = domain.StatusInactive
			inactive = append(inactive, user)
		}
		return nil
	})
	if err != nil {
		log.Printf("presence: mark users inactive: %v", err)
		return
	}

	for room, group := range groupByRoom(inactive) {
		r.emitter.ToRoom(room, broadcast.EventMarkInactive, group)
	}
}

// groupByRoom collects the affected users per room so each room gets one
// pass instead of redundant per-user broadcasts.
func groupByRoom(users []*models.User) map[string][]broadcast.UserView {
	groups := make(map[string][]broadcast.UserView)
	for _, user := range users {
		uv := userView(user)
		for _, room := range user.Rooms {
			groups[room.Name] = append(groups[room.Name], uv)
		}
	}
	return groups
}
