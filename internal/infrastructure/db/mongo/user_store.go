package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/ports"
)

const (
	accountsCollection = "accounts"
	countersCollection = "counters"
	accountsCounterID  = "accounts"
	usernameIndexName  = "idx_accounts_username"
	defaultOpTimeout   = 5 * time.Second
)

type accountDoc struct {
	ID           int64      `bson:"_id"`
	Username     string     `bson:"username"`
	PasswordHash string     `bson:"password_hash"`
	Role         string     `bson:"role"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
	LastLogin    *time.Time `bson:"last_login,omitempty"`
	IsActive     bool       `bson:"is_active"`
}

func (d *accountDoc) toDomain() *domain.Account {
	a := &domain.Account{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Role:         domain.Role(d.Role),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
		IsActive:     d.IsActive,
	}
	if d.LastLogin != nil {
		t := d.LastLogin.UTC()
		a.LastLoginAt = &t
	}
	return a
}

// backfills bring documents written by older versions up to the current
// shape. They only touch documents missing the field, so reruns are no-ops.
var backfills = []struct {
	field string
	value any
}{
	{field: "role", value: string(domain.DefaultRole)},
	{field: "is_active", value: true},
}

// UserStore implements ports.UserStore on MongoDB. Integer ids come from a
// counters collection so they match the SQL store.
type UserStore struct {
	cfg       Config
	hasher    ports.CredentialHasher
	log       zerolog.Logger
	opTimeout time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	client   *mongo.Client
	accounts *mongo.Collection
	counters *mongo.Collection
}

func NewUserStore(cfg Config, hasher ports.CredentialHasher, opTimeout time.Duration, log zerolog.Logger) *UserStore {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &UserStore{
		cfg:       cfg,
		hasher:    hasher,
		log:       log,
		opTimeout: opTimeout,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Initialize connects, ensures the unique username index, backfills legacy
// documents and seeds the bootstrap admin into an empty collection.
func (s *UserStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts != nil {
		return nil
	}

	client, db, err := Connect(ctx, s.cfg)
	if err != nil {
		return err
	}

	accounts := db.Collection(accountsCollection)
	counters := db.Collection(countersCollection)
	if err := s.prepare(ctx, accounts, counters); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}

	s.client = client
	s.accounts = accounts
	s.counters = counters
	s.log.Info().Str("database", s.cfg.Database).Msg("mongo user store initialized")
	return nil
}

func (s *UserStore) prepare(ctx context.Context, accounts, counters *mongo.Collection) error {
	_, err := accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(usernameIndexName),
	})
	if err != nil {
		return fmt.Errorf("creating username index: %w", err)
	}

	for _, b := range backfills {
		res, err := accounts.UpdateMany(ctx,
			bson.M{b.field: bson.M{"$exists": false}},
			bson.M{"$set": bson.M{b.field: b.value}},
		)
		if err != nil {
			return fmt.Errorf("migrating %s: %w", b.field, err)
		}
		if res.ModifiedCount > 0 {
			s.log.Info().Str("field", b.field).Int64("documents", res.ModifiedCount).Msg("backfilled account field")
		}
	}

	return s.seed(ctx, accounts, counters)
}

// seed upserts the bootstrap admin keyed on its username. The unique index
// makes concurrent seeding collapse into a single document.
func (s *UserStore) seed(ctx context.Context, accounts, counters *mongo.Collection) error {
	n, err := accounts.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("counting accounts: %w", err)
	}
	if n > 0 {
		return nil
	}

	hash, err := s.hasher.Hash(domain.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("hashing bootstrap password: %w", err)
	}
	id, err := nextID(ctx, counters)
	if err != nil {
		return err
	}

	now := s.now()
	res, err := accounts.UpdateOne(ctx,
		bson.M{"username": domain.BootstrapUsername},
		bson.M{"$setOnInsert": bson.M{
			"_id":           id,
			"password_hash": hash,
			"role":          string(domain.RoleAdmin),
			"created_at":    now,
			"updated_at":    now,
			"is_active":     true,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("seeding bootstrap account: %w", err)
	}
	if res.UpsertedCount == 0 {
		return nil
	}

	s.log.Warn().
		Str("audit", "insecure_config").
		Str("username", domain.BootstrapUsername).
		Str("action_required", "change this password immediately").
		Msg("bootstrap admin account created with the default password, which is insecure")
	return nil
}

func (s *UserStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		s.accounts, s.counters = nil, nil
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client, s.accounts, s.counters = nil, nil, nil
	if err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}

func (s *UserStore) Ping(ctx context.Context) error {
	accounts, _, err := s.collections()
	if err != nil {
		return err
	}
	return accounts.Database().Client().Ping(ctx, nil)
}

func (s *UserStore) CreateAccount(ctx context.Context, username, passwordHash string, role domain.Role) (int64, error) {
	accounts, counters, err := s.collections()
	if err != nil {
		return 0, err
	}
	if !role.IsValid() {
		return 0, domain.ErrInvalidRole
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	id, err := nextID(ctx, counters)
	if err != nil {
		return 0, err
	}

	now := s.now()
	doc := accountDoc{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         string(role),
		CreatedAt:    now,
		UpdatedAt:    now,
		IsActive:     true,
	}
	if _, err := accounts.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, domain.ErrDuplicateUsername
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return id, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return s.findOne(ctx, bson.M{"username": username, "is_active": true})
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.AccountView, error) {
	a, err := s.findOne(ctx, bson.M{"_id": id, "is_active": true})
	if err != nil {
		return nil, err
	}
	return a.View(), nil
}

func (s *UserStore) ListAll(ctx context.Context) ([]domain.AccountView, error) {
	accounts, _, err := s.collections()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := accounts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}

	views := make([]domain.AccountView, 0, len(docs))
	for i := range docs {
		views = append(views, *docs[i].toDomain().View())
	}
	return views, nil
}

func (s *UserStore) UpdateRole(ctx context.Context, id int64, role domain.Role) error {
	return s.UpdateFields(ctx, id, domain.AccountUpdate{Role: &role})
}

func (s *UserStore) UpdateFields(ctx context.Context, id int64, update domain.AccountUpdate) error {
	if update.Role != nil && !update.Role.IsValid() {
		return domain.ErrInvalidRole
	}

	set := bson.M{"updated_at": s.now()}
	if update.Username != nil {
		set["username"] = *update.Username
	}
	if update.Role != nil {
		set["role"] = string(*update.Role)
	}
	if update.IsActive != nil {
		set["is_active"] = *update.IsActive
	}

	err := s.updateOne(ctx, id, bson.M{"$set": set})
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicateUsername
	}
	return err
}

func (s *UserStore) RecordLogin(ctx context.Context, id int64) error {
	now := s.now()
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"last_login": now, "updated_at": now}})
}

func (s *UserStore) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"password_hash": passwordHash, "updated_at": s.now()}})
}

func (s *UserStore) Deactivate(ctx context.Context, id int64) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"is_active": false, "updated_at": s.now()}})
}

func (s *UserStore) DeleteHard(ctx context.Context, id int64) error {
	accounts, _, err := s.collections()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := accounts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	accounts, _, err := s.collections()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var doc accountDoc
	if err := accounts.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *UserStore) updateOne(ctx context.Context, id int64, update bson.M) error {
	accounts, _, err := s.collections()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := accounts.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UserStore) collections() (*mongo.Collection, *mongo.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accounts == nil {
		return nil, nil, domain.ErrNotInitialized
	}
	return s.accounts, s.counters, nil
}

// nextID atomically increments and returns the accounts sequence.
func nextID(ctx context.Context, counters *mongo.Collection) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := counters.FindOneAndUpdate(ctx,
		bson.M{"_id": accountsCounterID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next account id: %w", err)
	}
	return counter.Seq, nil
}
