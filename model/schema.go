package model

import "github.com/fitkeep/fitdb"

var (
	Schema = fitdb.NewSchema()

	Users      = fitdb.AddResource[UserKey, User](Schema, "users")
	Gears      = fitdb.AddResource[GearKey, Gear](Schema, "gear")
	Sessions   = fitdb.AddResource[ActivityKey, Session](Schema, "sessions")
	RecordSets = fitdb.AddResource[ActivityKey, Records](Schema, "records")
	LapSets    = fitdb.AddResource[ActivityKey, Laps](Schema, "laps")
	Clients    = fitdb.AddResource[ClientKey, Client](Schema, "clients")

	GearOwner       = fitdb.AddRelationEdge(Gears, Users)
	ActivityOwner   = fitdb.AddRelationEdge(Sessions, Users)
	ClientOwner     = fitdb.AddRelationEdge(Clients, Users)
	ActivityRecords = fitdb.AddRelationEdge(RecordSets, Sessions)
	ActivityLaps    = fitdb.AddRelationEdge(LapSets, Sessions)

	ActivityGear = fitdb.AddIndexEdge(Sessions, Gears)
)
