package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

const jobsCollection = "transcription_jobs"

// JobArchive implements repositories.JobArchive on a MongoDB collection
type JobArchive struct {
	client     *Client
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.JobArchive = (*JobArchive)(nil)

// NewJobArchive creates the archive and ensures its indexes in the background
func NewJobArchive(client *Client, logger *zap.Logger) *JobArchive {
	collection := client.Database.Collection(jobsCollection)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "completed_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		})
		if err != nil {
			logger.Error("Failed to create job archive indexes", zap.Error(err))
		} else {
			logger.Info("Job archive indexes created successfully")
		}
	}()

	return &JobArchive{client: client, collection: collection, logger: logger}
}

// Store upserts the job by id
func (a *JobArchive) Store(ctx context.Context, job entities.Job) error {
	_, err := a.collection.ReplaceOne(ctx, bson.M{"_id": job.ID}, job, options.Replace().SetUpsert(true))
	if err != nil {
		a.logger.Error("Failed to archive job", zap.Error(err), zap.String("job_id", job.ID))
		return err
	}
	a.logger.Debug("Job archived", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
	return nil
}

// Recent returns at most limit jobs, most recently completed first
func (a *JobArchive) Recent(ctx context.Context, limit int) ([]entities.Job, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "completed_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		a.logger.Error("Failed to query job archive", zap.Error(err))
		return nil, err
	}
	defer cursor.Close(ctx)

	jobs := []entities.Job{}
	for cursor.Next(ctx) {
		var job entities.Job
		if err := cursor.Decode(&job); err != nil {
			a.logger.Error("Failed to decode archived job", zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	if err := cursor.Err(); err != nil {
		a.logger.Error("Cursor error", zap.Error(err))
		return nil, err
	}
	return jobs, nil
}

// Close disconnects the underlying client
func (a *JobArchive) Close(ctx context.Context) error {
	return a.client.Close(ctx)
}
