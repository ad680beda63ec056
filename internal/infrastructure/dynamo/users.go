package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-account-api/internal/domain"
)

// UserRepo provides typed DynamoDB operations for the users table.
type UserRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserRepo(client *dynamodb.Client, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

func (r *UserRepo) Put(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Create inserts a new user and claims its email address in one transaction.
// The claim is a marker item keyed by the address, so two racing creates for
// the same email cannot both commit; the loser gets domain.ErrConflict. The
// marker carries no email attribute and stays invisible to the GSIs.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(user_id)"),
			}},
			{Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item: map[string]types.AttributeValue{
					"user_id":    &types.AttributeValueMemberS{Value: emailClaimKey(u.Email)},
					"claimed_by": &types.AttributeValueMemberS{Value: u.UserID},
				},
				ConditionExpression: aws.String("attribute_not_exists(user_id)"),
			}},
		},
	})
	if isTransactionConditionFailed(err) {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	return err
}

func emailClaimKey(email string) string { return "email#" + email }

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryGSI(ctx, "email-index", "email", email)
}

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.queryGSI(ctx, "phone-index", "phone", phone)
}

func (r *UserRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

// AddLoginAttempt bumps the throttle counter and stamps the attempt time as
// one atomic write. The ADD action makes concurrent failures commute; a lost
// write can only under-count, which fails open toward availability rather
// than toward extending a lockout.
func (r *UserRepo) AddLoginAttempt(ctx context.Context, userID string, at time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("user_id", userID),
		UpdateExpression: aws.String("ADD login_attempts :one SET last_login_attempt_at = :at, updated_at = :at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":at":  &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339)},
		},
	})
	return err
}

// ResetLoginAttempts zeroes the throttle counter after any successful
// verification.
func (r *UserRepo) ResetLoginAttempts(ctx context.Context, userID string) error {
	return r.Update(ctx, userID, map[string]interface{}{"login_attempts": 0})
}

// SaveAuthenticators persists the aggregate's authenticator list.
func (r *UserRepo) SaveAuthenticators(ctx context.Context, userID string, authenticators []domain.Authenticator) error {
	return r.Update(ctx, userID, map[string]interface{}{"authenticators": authenticators})
}

// SaveSessions persists the aggregate's session list.
func (r *UserRepo) SaveSessions(ctx context.Context, userID string, sessions []domain.SessionToken) error {
	return r.Update(ctx, userID, map[string]interface{}{"sessions": sessions})
}

// TouchSession stamps last_used_at on the session list entry at the given
// index. The condition pins the entry to its jti, so a concurrent logout that
// reshuffles the list cannot stamp the wrong session; in that case the write
// is dropped.
func (r *UserRepo) TouchSession(ctx context.Context, userID string, index int, jti string, at time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey("user_id", userID),
		UpdateExpression:         aws.String(fmt.Sprintf("SET #s[%d].last_used_at = :at", index)),
		ConditionExpression:      aws.String(fmt.Sprintf("#s[%d].jti = :jti", index)),
		ExpressionAttributeNames: map[string]string{"#s": "sessions"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at":  &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339)},
			":jti": &types.AttributeValueMemberS{Value: jti},
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}

// SetPendingToken records the jti of the outstanding action token.
func (r *UserRepo) SetPendingToken(ctx context.Context, userID, jti string) error {
	return r.Update(ctx, userID, map[string]interface{}{"pending_token_id": jti})
}

// ConsumePendingToken clears the pending-token slot iff it still holds the
// given jti. The conditional write guarantees at-most-once consumption even
// when two requests race with the same token; the loser gets
// domain.ErrBadToken.
func (r *UserRepo) ConsumePendingToken(ctx context.Context, userID, jti string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("user_id", userID),
		UpdateExpression:    aws.String("SET pending_token_id = :empty, updated_at = :now"),
		ConditionExpression: aws.String("pending_token_id = :jti"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":jti":   &types.AttributeValueMemberS{Value: jti},
			":empty": &types.AttributeValueMemberS{Value: ""},
			":now":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("token already used: %w", domain.ErrBadToken)
	}
	return err
}

func (r *UserRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// isTransactionConditionFailed reports whether a TransactWriteItems call was
// cancelled because one of its condition checks failed.
func isTransactionConditionFailed(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, reason := range tce.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
