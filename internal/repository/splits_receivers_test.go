package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/internal/repository"
	"github.com/drips-network/dripfeed-sub001/tests/helpers"
	"github.com/stretchr/testify/require"
)

func TestValidateSplitsTriple(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		receiver string
		rel     string
		wantErr bool
	}{
		{"project maintainer", repository.AccountTypeProject, repository.AccountTypeAddress, repository.RelationshipProjectMaintainer, false},
		{"drip list to project", repository.AccountTypeDripList, repository.AccountTypeProject, repository.RelationshipDripListReceiver, false},
		{"identity owner", repository.AccountTypeLinkedIdentity, repository.AccountTypeAddress, repository.RelationshipIdentityOwner, false},
		{"invalid combination", repository.AccountTypeAddress, repository.AccountTypeProject, repository.RelationshipProjectMaintainer, true},
		{"project maintainer wrong receiver", repository.AccountTypeProject, repository.AccountTypeDripList, repository.RelationshipProjectMaintainer, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repository.ValidateSplitsTriple(tt.sender, tt.receiver, tt.rel)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSplitsReceivers_ReplaceForSenderIsAtomic(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	log := logger.Nop()
	repo := repository.NewSplitsReceivers(database, schema, log)
	ctx := context.Background()
	ts := time.Unix(1700000000, 0).UTC()

	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceForSender(ctx, tx, "1", repository.AccountTypeProject, repository.RelationshipProjectDependency,
		[]repository.SplitsReceiverInput{
			{ReceiverAccountID: "2", ReceiverAccountType: repository.AccountTypeAddress, Weight: 500000},
			{ReceiverAccountID: "3", ReceiverAccountType: repository.AccountTypeProject, Weight: 500000},
		}, ts, repository.EventPointer{Block: 1}))
	require.NoError(t, tx.Commit())

	rows, err := repo.FindBySender(ctx, "1", repository.RelationshipProjectDependency)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	tx, err = database.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceForSender(ctx, tx, "1", repository.AccountTypeProject, repository.RelationshipProjectDependency,
		[]repository.SplitsReceiverInput{
			{ReceiverAccountID: "4", ReceiverAccountType: repository.AccountTypeAddress, Weight: 1000000},
		}, ts, repository.EventPointer{Block: 2}))
	require.NoError(t, tx.Commit())

	rows, err = repo.FindBySender(ctx, "1", repository.RelationshipProjectDependency)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "4", rows[0].ReceiverAccountID)
}

func TestSplitsReceivers_RejectsInvalidTriple(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	log := logger.Nop()
	repo := repository.NewSplitsReceivers(database, schema, log)
	ctx := context.Background()
	ts := time.Unix(1700000000, 0).UTC()

	tx, err := database.Begin()
	require.NoError(t, err)
	err = repo.ReplaceForSender(ctx, tx, "1", repository.AccountTypeAddress, repository.RelationshipProjectMaintainer,
		[]repository.SplitsReceiverInput{
			{ReceiverAccountID: "2", ReceiverAccountType: repository.AccountTypeAddress, Weight: 1000000},
		}, ts, repository.EventPointer{Block: 1})
	require.Error(t, err)
	require.NoError(t, tx.Rollback())
}
