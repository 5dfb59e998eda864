// Package mongostore is the MongoDB backend of the ledger.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

const (
	transactionsCollection = "transactions"
	usersCollection        = "users"
	runsCollection         = "recurrence_runs"

	releaseTimeout = 5 * time.Second
)

type transactionDoc struct {
	ID             string    `bson:"_id"`
	OwnerID        string    `bson:"ownerId"`
	Description    string    `bson:"description"`
	AmountCents    int64     `bson:"amountCents"`
	Date           string    `bson:"date"`
	Category       string    `bson:"category"`
	IsRecurring    bool      `bson:"isRecurring"`
	RepeatInterval string    `bson:"repeatInterval,omitempty"`
	AttachmentRef  string    `bson:"attachmentRef,omitempty"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

type userDoc struct {
	ID           string     `bson:"_id"`
	Name         string     `bson:"name"`
	Email        string     `bson:"email"`
	PasswordHash string     `bson:"passwordHash"`
	CreatedAt    time.Time  `bson:"createdAt"`
	LastLogin    *time.Time `bson:"lastLogin,omitempty"`
}

type runDoc struct {
	TemplateID string    `bson:"templateId"`
	DueDate    string    `bson:"dueDate"`
	InstanceID string    `bson:"instanceId"`
	CreatedAt  time.Time `bson:"createdAt"`
}

// Store implements ledger.Store on top of a CollectionProvider.
type Store struct {
	provider CollectionProvider
	client   *mongo.Client
	now      func() time.Time
}

var _ ledger.Store = (*Store)(nil)

func NewStore(provider CollectionProvider) *Store {
	return &Store{
		provider: provider,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Open connects to uri, ensures indexes on dbName and returns a ready store.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := EnsureIndexes(ctx, client.Database(dbName)); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s := NewStore(NewMongoProvider(client, dbName))
	s.client = client
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	created, err := s.insertTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, core.Persistence("insert transaction", err)
	}
	return created, nil
}

func (s *Store) insertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if _, err := s.provider.Collection(transactionsCollection).InsertOne(ctx, toTransactionDoc(t)); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

var newestFirst = bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}}

func (s *Store) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	txs, err := s.find(ctx, bson.M{"ownerId": ownerID})
	if err != nil {
		return nil, core.Persistence("list transactions", err)
	}
	return txs, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]core.Transaction, error) {
	txs, err := s.find(ctx, bson.M{"isRecurring": true})
	if err != nil {
		return nil, core.Persistence("list templates", err)
	}
	return txs, nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]core.Transaction, error) {
	cur, err := s.provider.Collection(transactionsCollection).Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(docs))
	for _, d := range docs {
		t, err := d.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	ledger.SortNewestFirst(out)
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	var doc transactionDoc
	err := s.provider.Collection(transactionsCollection).
		FindOne(ctx, bson.M{"_id": id, "ownerId": ownerID}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, core.Persistence("get transaction", err)
	}
	t, err := doc.toCore()
	if err != nil {
		return core.Transaction{}, core.Persistence("get transaction", err)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, ownerID string, t core.Transaction) (core.Transaction, error) {
	set := bson.M{
		"description":   t.Description,
		"amountCents":   t.Amount.Cents,
		"date":          t.Date.String(),
		"category":      t.Category,
		"isRecurring":   t.IsRecurring,
		"attachmentRef": t.AttachmentRef,
		"updatedAt":     s.now(),
	}
	update := bson.M{"$set": set}
	if t.RepeatInterval == "" {
		update["$unset"] = bson.M{"repeatInterval": ""}
	} else {
		set["repeatInterval"] = string(t.RepeatInterval)
	}

	res, err := s.provider.Collection(transactionsCollection).
		UpdateOne(ctx, bson.M{"_id": t.ID, "ownerId": ownerID}, update)
	if err != nil {
		return core.Transaction{}, core.Persistence("update transaction", err)
	}
	if res.MatchedCount == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	return s.GetTransaction(ctx, ownerID, t.ID)
}

func (s *Store) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	res, err := s.provider.Collection(transactionsCollection).
		DeleteOne(ctx, bson.M{"_id": id, "ownerId": ownerID})
	if err != nil {
		return core.Persistence("delete transaction", err)
	}
	if res.DeletedCount == 0 {
		return core.ErrNotFound
	}
	return nil
}

// MaterializeOccurrence claims the (template, due) pair through the unique
// index on recurrence_runs and then inserts the instance. If the insert
// fails the claim is released so a later pass can retry.
func (s *Store) MaterializeOccurrence(ctx context.Context, template core.Transaction, due core.Date, instance core.Transaction) (core.Transaction, error) {
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	runs := s.provider.Collection(runsCollection)
	claim := runDoc{TemplateID: template.ID, DueDate: due.String(), InstanceID: instance.ID, CreatedAt: s.now()}
	if _, err := runs.InsertOne(ctx, claim); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return core.Transaction{}, core.ErrAlreadyMaterialized
		}
		return core.Transaction{}, core.Persistence("claim occurrence", err)
	}

	created, err := s.insertTransaction(ctx, instance)
	if err != nil {
		// The pass may have been cancelled mid-insert; the claim must go anyway.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if _, rerr := runs.DeleteOne(rctx, bson.M{"templateId": claim.TemplateID, "dueDate": claim.DueDate}); rerr != nil {
			err = fmt.Errorf("%w (release claim: %v)", err, rerr)
		}
		return core.Transaction{}, core.Persistence("insert occurrence", err)
	}
	return created, nil
}

func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = core.NormalizeEmail(u.Email)
	u.CreatedAt = s.now()

	doc := userDoc{ID: u.ID, Name: u.Name, Email: u.Email, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
	if _, err := s.provider.Collection(usersCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return core.User{}, core.NewEmailTakenError()
		}
		return core.User{}, core.Persistence("insert user", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return s.getUser(ctx, bson.M{"email": core.NormalizeEmail(email)})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return s.getUser(ctx, bson.M{"_id": id})
}

func (s *Store) getUser(ctx context.Context, filter bson.M) (core.User, error) {
	var doc userDoc
	err := s.provider.Collection(usersCollection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, core.Persistence("get user", err)
	}
	u := core.User{ID: doc.ID, Name: doc.Name, Email: doc.Email, PasswordHash: doc.PasswordHash, CreatedAt: doc.CreatedAt}
	if doc.LastLogin != nil {
		u.LastLogin = *doc.LastLogin
	}
	return u, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.provider.Collection(usersCollection).
		UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastLogin": at.UTC()}})
	if err != nil {
		return core.Persistence("touch last login", err)
	}
	if res.MatchedCount == 0 {
		return core.ErrNotFound
	}
	return nil
}

func toTransactionDoc(t core.Transaction) transactionDoc {
	return transactionDoc{
		ID:             t.ID,
		OwnerID:        t.OwnerID,
		Description:    t.Description,
		AmountCents:    t.Amount.Cents,
		Date:           t.Date.String(),
		Category:       t.Category,
		IsRecurring:    t.IsRecurring,
		RepeatInterval: string(t.RepeatInterval),
		AttachmentRef:  t.AttachmentRef,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func (d transactionDoc) toCore() (core.Transaction, error) {
	date, err := core.ParseDate(d.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", d.Date, err)
	}
	return core.Transaction{
		ID:             d.ID,
		OwnerID:        d.OwnerID,
		Description:    d.Description,
		Amount:         core.Money{Cents: d.AmountCents},
		Date:           date,
		Category:       d.Category,
		IsRecurring:    d.IsRecurring,
		RepeatInterval: core.RepeatInterval(d.RepeatInterval),
		AttachmentRef:  d.AttachmentRef,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}
