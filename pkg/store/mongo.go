package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoMainCollection = "pcb_main_images"
	mongoCropCollection = "pcb_defect_crops"
	mongoCloseTimeout   = 5 * time.Second
)

// MongoStore implements MetadataStore with one collection per record type.
type MongoStore struct {
	client *mongo.Client
	mains  *mongo.Collection
	crops  *mongo.Collection
}

type mainDoc struct {
	ID               string    `bson:"_id"`
	StoragePath      string    `bson:"storage_path"`
	PublicURL        string    `bson:"public_url"`
	Width            int       `bson:"width"`
	Height           int       `bson:"height"`
	OriginalFilename string    `bson:"original_filename,omitempty"`
	BoardCode        *string   `bson:"board_code"`
	Note             *string   `bson:"note"`
	CreatedAt        time.Time `bson:"created_at"`
}

type cropDoc struct {
	ID              string    `bson:"_id"`
	MainImageID     string    `bson:"main_image_id"`
	CropStoragePath string    `bson:"crop_storage_path"`
	CropPublicURL   string    `bson:"crop_public_url"`
	CropWidth       int       `bson:"crop_width"`
	CropHeight      int       `bson:"crop_height"`
	Prediction      string    `bson:"prediction"`
	Confidence      float64   `bson:"confidence"`
	BBox            BBox      `bson:"bbox"`
	CreatedAt       time.Time `bson:"created_at"`
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	ms := &MongoStore{
		client: client,
		mains:  db.Collection(mongoMainCollection),
		crops:  db.Collection(mongoCropCollection),
	}
	if _, err := ms.crops.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "main_image_id", Value: 1}}}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: create index: %w", err)
	}
	return ms, nil
}

func (ms *MongoStore) InsertMainImage(ctx context.Context, m *MainImage) error {
	doc := mainDoc{
		ID:               uuid.NewString(),
		StoragePath:      m.StoragePath,
		PublicURL:        m.PublicURL,
		Width:            m.Width,
		Height:           m.Height,
		OriginalFilename: m.OriginalFilename,
		BoardCode:        m.BoardCode,
		Note:             m.Note,
		CreatedAt:        time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := ms.mains.InsertOne(ctx, doc); err != nil {
		return err
	}
	m.ID, m.CreatedAt = doc.ID, doc.CreatedAt
	return nil
}

// InsertDefectCrop checks the parent exists, since Mongo has no foreign keys.
func (ms *MongoStore) InsertDefectCrop(ctx context.Context, c *DefectCrop) error {
	n, err := ms.mains.CountDocuments(ctx, bson.M{"_id": c.MainImageID})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("main image %q does not exist", c.MainImageID)
	}
	doc := cropDoc{
		ID:              uuid.NewString(),
		MainImageID:     c.MainImageID,
		CropStoragePath: c.CropStoragePath,
		CropPublicURL:   c.CropPublicURL,
		CropWidth:       c.CropWidth,
		CropHeight:      c.CropHeight,
		Prediction:      c.Prediction,
		Confidence:      c.Confidence,
		BBox:            c.BBox,
		CreatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := ms.crops.InsertOne(ctx, doc); err != nil {
		return err
	}
	c.ID, c.CreatedAt = doc.ID, doc.CreatedAt
	return nil
}

func (ms *MongoStore) ListMainImages(ctx context.Context) ([]MainImage, error) {
	cursor, err := ms.mains.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []MainImage
	for cursor.Next(ctx) {
		var d mainDoc
		if err := cursor.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, MainImage{
			ID:               d.ID,
			StoragePath:      d.StoragePath,
			PublicURL:        d.PublicURL,
			Width:            d.Width,
			Height:           d.Height,
			OriginalFilename: d.OriginalFilename,
			BoardCode:        d.BoardCode,
			Note:             d.Note,
			CreatedAt:        d.CreatedAt,
		})
	}
	return out, cursor.Err()
}

func (ms *MongoStore) ListDefectCrops(ctx context.Context) ([]DefectCrop, error) {
	cursor, err := ms.crops.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []DefectCrop
	for cursor.Next(ctx) {
		var d cropDoc
		if err := cursor.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, DefectCrop{
			ID:              d.ID,
			MainImageID:     d.MainImageID,
			CropStoragePath: d.CropStoragePath,
			CropPublicURL:   d.CropPublicURL,
			CropWidth:       d.CropWidth,
			CropHeight:      d.CropHeight,
			Prediction:      d.Prediction,
			Confidence:      d.Confidence,
			BBox:            d.BBox,
			CreatedAt:       d.CreatedAt,
		})
	}
	return out, cursor.Err()
}

func (ms *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

var _ MetadataStore = (*MongoStore)(nil)
