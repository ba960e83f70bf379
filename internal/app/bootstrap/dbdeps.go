// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/stratadues/internal/app/store/audit"
	"github.com/dalemusser/stratadues/internal/app/store/blobs"
	userstore "github.com/dalemusser/stratadues/internal/app/store/users"
	"github.com/dalemusser/stratadues/internal/app/system/auditlog"
	"github.com/dalemusser/stratadues/internal/app/system/lockout"
	"github.com/dalemusser/stratadues/internal/app/system/loginhistory"
	"github.com/dalemusser/stratadues/internal/app/system/profilepic"
	"github.com/dalemusser/stratadues/internal/app/system/signin"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. Besides the
// MongoDB client it carries the file-backed stores and the services built
// on them, so every hook shares one instance of each.
//
// The Shutdown hook is responsible for closing these connections gracefully
// when the application terminates.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// File-backed stores under DataDir
	HistoryDir   string
	PicturesDir  string
	HistoryStore *loginhistory.Store
	Blobs        *blobs.Store

	// Mongo-backed stores
	Users      *userstore.Store
	AuditStore *audit.Store

	// Services
	AuditLog *auditlog.Logger
	History  *loginhistory.Service
	Gate     *lockout.Gate
	Pictures *profilepic.Service
	SignIn   *signin.Service
}
