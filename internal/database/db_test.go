package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testDB *DB

const testDBDSN = "file::memory:?_journal_mode=WAL&cache=shared"

func TestMain(m *testing.M) {
	db, err := Open(DriverSQLite, testDBDSN, &gorm.Config{})
	if err != nil {
		panic(fmt.Errorf("failed to connect to the DB: %w", err))
	}
	underlyingDb, err := db.DB.DB()
	if err != nil {
		panic(fmt.Errorf("failed to access underlying DB: %w", err))
	}
	underlyingDb.SetMaxOpenConns(1)
	if err := db.AddDatabaseTables(); err != nil {
		panic(fmt.Errorf("failed to add database tables: %w", err))
	}
	if err := db.CreateIndices(); err != nil {
		panic(fmt.Errorf("failed to create indices: %w", err))
	}

	testDB = db

	os.Exit(m.Run())
}

func makeUserAndDevice(t *testing.T, ctx context.Context) (*User, *Device) {
	user := &User{Username: "user-" + uuid.Must(uuid.NewRandom()).String()}
	require.NoError(t, testDB.CreateUser(ctx, user))
	device := &Device{DeviceId: "dev-" + uuid.Must(uuid.NewRandom()).String(), OwnerID: user.ID, RegistrationDate: time.Now()}
	require.NoError(t, testDB.CreateDevice(ctx, device))
	return user, device
}

func TestUserLookup(t *testing.T) {
	ctx := context.Background()
	user, _ := makeUserAndDevice(t, ctx)

	found, err := testDB.UserByUsername(ctx, user.Username)
	require.NoError(t, err)
	require.True(t, found.Found)
	require.Equal(t, user.ID, found.Value.ID)

	missing, err := testDB.UserByUsername(ctx, "no-such-user")
	require.NoError(t, err)
	_, ok := missing.Get()
	require.False(t, ok)
}

func TestDuplicateUsernameConflicts(t *testing.T) {
	ctx := context.Background()
	user, _ := makeUserAndDevice(t, ctx)

	err := testDB.CreateUser(ctx, &User{Username: user.Username})
	require.ErrorIs(t, err, ErrConflict)
}

func TestDeviceLookupAndOwnership(t *testing.T) {
	ctx := context.Background()
	user, device := makeUserAndDevice(t, ctx)
	second := &Device{DeviceId: "dev-" + uuid.Must(uuid.NewRandom()).String(), OwnerID: user.ID, RegistrationDate: time.Now()}
	require.NoError(t, testDB.CreateDevice(ctx, second))

	found, err := testDB.DeviceByID(ctx, device.DeviceId)
	require.NoError(t, err)
	require.True(t, found.Found)
	require.Equal(t, user.ID, found.Value.OwnerID)

	missing, err := testDB.DeviceByID(ctx, "no-such-device")
	require.NoError(t, err)
	require.False(t, missing.Found)

	devices, err := testDB.DevicesForOwner(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Equal(t, device.DeviceId, devices[0].DeviceId)
	require.Equal(t, second.DeviceId, devices[1].DeviceId)

	err = testDB.CreateDevice(ctx, &Device{DeviceId: device.DeviceId, OwnerID: user.ID})
	require.ErrorIs(t, err, ErrConflict)
}

func TestReadingRequiresRegisteredDevice(t *testing.T) {
	ctx := context.Background()
	err := testDB.InsertReading(ctx, &Reading{DeviceId: "unregistered-" + uuid.Must(uuid.NewRandom()).String(), Timestamp: time.Now(), X: 1})
	require.Error(t, err)
}

func TestReadingsForDeviceTimeRange(t *testing.T) {
	ctx := context.Background()
	_, device := makeUserAndDevice(t, ctx)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, testDB.InsertReading(ctx, &Reading{
			DeviceId:  device.DeviceId,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			X:         float64(i),
			Y:         float64(i * 2),
			Z:         float64(i * 3),
		}))
	}

	all, err := testDB.ReadingsForDevice(ctx, device.DeviceId, TimeRange{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, 0.0, all[0].X)
	require.Equal(t, 4.0, all[4].X)

	start := base.Add(time.Hour)
	end := base.Add(3 * time.Hour)
	ranged, err := testDB.ReadingsForDevice(ctx, device.DeviceId, TimeRange{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	require.Equal(t, 1.0, ranged[0].X)
	require.Equal(t, 3.0, ranged[2].X)

	// Bounds in another zone describe the same instants
	loc := time.FixedZone("UTC+2", 2*60*60)
	startLocal := start.In(loc)
	onlyStart, err := testDB.ReadingsForDevice(ctx, device.DeviceId, TimeRange{Start: &startLocal})
	require.NoError(t, err)
	require.Len(t, onlyStart, 4)

	none, err := testDB.ReadingsForDevice(ctx, "no-such-device", TimeRange{})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestInsertReadingsAndDeviceSet(t *testing.T) {
	ctx := context.Background()
	user, d1 := makeUserAndDevice(t, ctx)
	d2 := &Device{DeviceId: "dev-" + uuid.Must(uuid.NewRandom()).String(), OwnerID: user.ID, RegistrationDate: time.Now()}
	require.NoError(t, testDB.CreateDevice(ctx, d2))
	_, other := makeUserAndDevice(t, ctx)

	now := time.Now()
	readings := []*Reading{}
	for i := 0; i < 2500; i++ {
		deviceID := d1.DeviceId
		if i%2 == 1 {
			deviceID = d2.DeviceId
		}
		readings = append(readings, &Reading{DeviceId: deviceID, Timestamp: now, X: float64(i)})
	}
	require.NoError(t, testDB.InsertReadings(ctx, readings))
	require.NoError(t, testDB.InsertReading(ctx, &Reading{DeviceId: other.DeviceId, Timestamp: now}))

	set, err := testDB.ReadingsForDevices(ctx, []string{d1.DeviceId, d2.DeviceId}, TimeRange{})
	require.NoError(t, err)
	require.Len(t, set, 2500)

	empty, err := testDB.ReadingsForDevices(ctx, nil, TimeRange{})
	require.NoError(t, err)
	require.Empty(t, empty)

	usage, err := testDB.DeviceUsage(ctx)
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, u := range usage {
		counts[u.DeviceId] = u.NumReadings
	}
	require.Equal(t, int64(1250), counts[d1.DeviceId])
	require.Equal(t, int64(1250), counts[d2.DeviceId])
	require.Equal(t, int64(1), counts[other.DeviceId])
}

func TestInsertReadingsIsAtomic(t *testing.T) {
	ctx := context.Background()
	_, device := makeUserAndDevice(t, ctx)
	readings := []*Reading{
		{DeviceId: device.DeviceId, Timestamp: time.Now(), X: 1},
		{DeviceId: "unregistered-" + uuid.Must(uuid.NewRandom()).String(), Timestamp: time.Now(), X: 2},
	}
	require.Error(t, testDB.InsertReadings(ctx, readings))

	stored, err := testDB.ReadingsForDevice(ctx, device.DeviceId, TimeRange{})
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestCounts(t *testing.T) {
	ctx := context.Background()
	makeUserAndDevice(t, ctx)
	numUsers, err := testDB.CountAllUsers(ctx)
	require.NoError(t, err)
	require.Positive(t, numUsers)
	numDevices, err := testDB.CountAllDevices(ctx)
	require.NoError(t, err)
	require.Positive(t, numDevices)
	_, err = testDB.CountReadings(ctx)
	require.NoError(t, err)
	require.NoError(t, testDB.Ping(ctx))
}
