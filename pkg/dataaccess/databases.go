package dataaccess

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoDB is the Mongo client used by the optional transcript archive. This is
// a connection pool; it stays nil when no archive is configured.
var MongoDB *mongo.Client

const mongoDatabase = "modmail"
