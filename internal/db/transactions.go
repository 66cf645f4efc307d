package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
)

type customerDoc struct {
	Email     string `bson:"email"`
	FirstName string `bson:"first_name,omitempty"`
	LastName  string `bson:"last_name,omitempty"`
}

type transactionDoc struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty"`
	TxRef          string               `bson:"tx_ref"`
	Amount         primitive.Decimal128 `bson:"amount"`
	Currency       string               `bson:"currency"`
	Customer       customerDoc          `bson:"customer"`
	Status         string               `bson:"status"`
	ProviderStatus string               `bson:"provider_status,omitempty"`
	Source         string               `bson:"source,omitempty"`
	CreatedAt      time.Time            `bson:"created_at"`
	UpdatedAt      time.Time            `bson:"updated_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func (d transactionDoc) model() (*models.Transaction, error) {
	amount := decimal.Zero
	if s := d.Amount.String(); s != "" && s != "NaN" {
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("decode amount of %s: %w", d.TxRef, err)
		}
		amount = parsed
	}
	return &models.Transaction{
		TxRef:    d.TxRef,
		Amount:   amount,
		Currency: d.Currency,
		Customer: models.Customer{
			Email:     d.Customer.Email,
			FirstName: d.Customer.FirstName,
			LastName:  d.Customer.LastName,
		},
		Status:         models.TxStatus(d.Status),
		ProviderStatus: d.ProviderStatus,
		Source:         d.Source,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

// TransactionRepository stores one document per tx_ref in the payments
// collection.
type TransactionRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewTransactionRepository(database *mongo.Database) *TransactionRepository {
	return &TransactionRepository{
		collection: database.Collection(TransactionsCollection),
		now:        time.Now,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return fmt.Errorf("encode amount: %w", err)
	}
	now := r.now().UTC()
	doc := transactionDoc{
		TxRef:    tx.TxRef,
		Amount:   amount,
		Currency: tx.Currency,
		Customer: customerDoc{
			Email:     tx.Customer.Email,
			FirstName: tx.Customer.FirstName,
			LastName:  tx.Customer.LastName,
		},
		Status:         string(tx.Status),
		ProviderStatus: tx.ProviderStatus,
		Source:         tx.Source,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transaction %s: %w", tx.TxRef, err)
	}
	tx.CreatedAt, tx.UpdatedAt = now, now
	return nil
}

func (r *TransactionRepository) FindByTxRef(ctx context.Context, txRef string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc transactionDoc
	if err := r.collection.FindOne(ctx, bson.M{"tx_ref": txRef}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find transaction %s: %w", txRef, err)
	}
	return doc.model()
}

// Transition applies t unless the stored transaction is already terminal.
// A missing transaction is created unless t.UpdateOnly is set. The boolean
// reports whether anything was written; a rejected transition is not an
// error.
func (r *TransactionRepository) Transition(ctx context.Context, t models.Transition) (bool, error) {
	filter, update, opts, err := transitionUpdate(t, r.now().UTC())
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		// the upsert collided with a terminal record on the unique tx_ref index
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("transition %s to %s: %w", t.TxRef, t.Status, err)
	}
	return res.MatchedCount > 0 || res.UpsertedCount > 0, nil
}

func transitionUpdate(t models.Transition, now time.Time) (bson.M, bson.M, *options.UpdateOptions, error) {
	filter := bson.M{
		"tx_ref": t.TxRef,
		"status": bson.M{"$nin": bson.A{string(models.TxSuccess), string(models.TxFailed)}},
	}
	update := bson.M{
		"$set": bson.M{
			"status":          string(t.Status),
			"provider_status": t.ProviderStatus,
			"source":          t.Source,
			"updated_at":      now,
		},
	}
	if t.UpdateOnly {
		return filter, update, options.Update(), nil
	}

	onInsert := bson.M{
		"created_at": now,
		"currency":   t.Currency,
		"customer":   customerDoc{Email: t.Email},
	}
	if !t.Amount.IsZero() {
		amount, err := toDecimal128(t.Amount)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode amount: %w", err)
		}
		onInsert["amount"] = amount
	}
	update["$setOnInsert"] = onInsert
	return filter, update, options.Update().SetUpsert(true), nil
}
