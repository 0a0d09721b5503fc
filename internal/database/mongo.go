package database

import (
	"context"
	"errors"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"slotbook/entity"
	"slotbook/internal/config"
)

const (
	collectionUsers   = "users"
	collectionSlots   = "slots"
	collectionInvites = "invites"
)

// filter matching a slot that has not been claimed. Claims and deletes are
// conditioned on this filter so the store itself is the serialization point:
// a concurrent claim and delete (or two claims) can never both match.
var unbookedFilter = bson.D{{Key: "$or", Value: bson.A{
	bson.D{{Key: "booked_by", Value: bson.D{{Key: "$exists", Value: false}}}},
	bson.D{{Key: "booked_by", Value: ""}},
}}}

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) *MongoDB {
	if !conf.Mongo.Enabled {
		return nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	_ = connection.Disconnect(m.ctx)
}

// --- Slots ---

func (m *MongoDB) ListSlots() ([]*entity.Slot, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSlots)
	opts := options.Find().SetSort(bson.D{{Key: "datetime", Value: 1}})
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(m.ctx)

	var slots []*entity.Slot
	err = cursor.All(m.ctx, &slots)
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (m *MongoDB) GetSlot(id string) (*entity.Slot, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSlots)
	filter := bson.D{{Key: "_id", Value: id}}
	var slot entity.Slot
	err = collection.FindOne(m.ctx, filter).Decode(&slot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (m *MongoDB) CreateSlot(slot *entity.Slot) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSlots)
	_, err = collection.InsertOne(m.ctx, slot)
	return err
}

// DeleteSlotIfUnbooked removes a slot only while it is still unclaimed,
// so a staff edit racing an applicant's claim cannot destroy the booking.
// Returns false without error when nothing matched (absent or booked).
func (m *MongoDB) DeleteSlotIfUnbooked(id string) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSlots)
	filter := bson.D{{Key: "_id", Value: id}}
	filter = append(filter, unbookedFilter...)
	result, err := collection.DeleteOne(m.ctx, filter)
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

// ClaimSlot stamps the booker onto a slot with a single conditional write.
// At most one concurrent caller can match the unbooked filter; everyone
// else gets ErrSlotTaken (or ErrSlotNotFound if the slot is gone).
func (m *MongoDB) ClaimSlot(id, token, name, email string) (*entity.Slot, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSlots)
	filter := bson.D{{Key: "_id", Value: id}}
	filter = append(filter, unbookedFilter...)
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "booked_by", Value: token},
		{Key: "booker_name", Value: name},
		{Key: "booker_email", Value: email},
		{Key: "available", Value: false},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot entity.Slot
	err = collection.FindOneAndUpdate(m.ctx, filter, update, opts).Decode(&slot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// No match: either the slot never existed or someone else won.
		if _, getErr := m.getSlotWith(connection, id); errors.Is(getErr, entity.ErrSlotNotFound) {
			return nil, entity.ErrSlotNotFound
		}
		return nil, entity.ErrSlotTaken
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (m *MongoDB) getSlotWith(connection *mongo.Client, id string) (*entity.Slot, error) {
	collection := connection.Database(m.database).Collection(collectionSlots)
	var slot entity.Slot
	err := collection.FindOne(m.ctx, bson.D{{Key: "_id", Value: id}}).Decode(&slot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// --- Invites ---

func (m *MongoDB) CreateInvite(invite *entity.Invite) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionInvites)
	_, err = collection.InsertOne(m.ctx, invite)
	return err
}

func (m *MongoDB) GetInvite(token string) (*entity.Invite, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionInvites)
	filter := bson.D{{Key: "_id", Value: token}}
	var invite entity.Invite
	err = collection.FindOne(m.ctx, filter).Decode(&invite)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrInviteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

func (m *MongoDB) UpdateInviteStatus(token string, patch entity.InvitePatch) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	set := bson.D{}
	if patch.Status != "" {
		set = append(set, bson.E{Key: "status", Value: patch.Status})
	}
	if patch.BookedSlotId != "" {
		set = append(set, bson.E{Key: "booked_slot_id", Value: patch.BookedSlotId})
	}
	if len(set) == 0 {
		return nil
	}

	collection := connection.Database(m.database).Collection(collectionInvites)
	filter := bson.D{{Key: "_id", Value: token}}
	result, err := collection.UpdateOne(m.ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return entity.ErrInviteNotFound
	}
	return nil
}

func (m *MongoDB) ListInvites() ([]*entity.Invite, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionInvites)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(m.ctx)

	var invites []*entity.Invite
	err = cursor.All(m.ctx, &invites)
	if err != nil {
		return nil, err
	}
	return invites, nil
}

// --- Staff users ---

func (m *MongoDB) GetUser(token string) (*entity.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "token", Value: token}}
	var user entity.User
	err = collection.FindOne(m.ctx, filter).Decode(&user)
	return &user, err
}

func (m *MongoDB) GetAllTelegramUsers() ([]*entity.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "telegram_id", Value: bson.D{{Key: "$gt", Value: 0}}}}
	cursor, err := collection.Find(m.ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(m.ctx)

	var users []*entity.User
	err = cursor.All(m.ctx, &users)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (m *MongoDB) RegisterTelegramUser(telegramId int64, username string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "telegram_id", Value: telegramId}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "telegram_username", Value: username},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "username", Value: username},
			{Key: "role", Value: entity.RolePending},
			{Key: "telegram_enabled", Value: false},
		}},
	}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) SetTelegramEnabled(id int64, isActive bool, logLevel int) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "telegram_id", Value: id}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "telegram_enabled", Value: isActive},
		{Key: "log_level", Value: logLevel},
	}}}
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) SetTelegramTopics(telegramId int64, topics []string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "telegram_id", Value: telegramId}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "topics", Value: topics}}}}
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) SetRole(telegramId int64, role entity.Role) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "telegram_id", Value: telegramId}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "role", Value: role},
		{Key: "telegram_enabled", Value: role == entity.RoleStaff || role == entity.RoleAdmin},
	}}}
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}
