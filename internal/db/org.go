package db

import (
	"context"
	"fmt"
)

// orgObjectiveIDs selects objectives shared with a user through an organization.
// It takes one argument: the user ID.
const orgObjectiveIDs = `
	SELECT o.id FROM objectives o
	JOIN org_members m ON m.org_id = o.org_id
	WHERE m.user_id = ?`

// AddOrgMember records that a user belongs to an organization.
func (g *GoalDB) AddOrgMember(ctx context.Context, orgID, userID string) error {
	_, err := g.exec(ctx, `
		INSERT INTO org_members (org_id, user_id) VALUES (?, ?)
		ON CONFLICT (org_id, user_id) DO NOTHING
	`, orgID, userID)
	if err != nil {
		return fmt.Errorf("add org member %s/%s: %w", orgID, userID, err)
	}
	return nil
}
