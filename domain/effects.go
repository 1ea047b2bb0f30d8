package domain

import "context"

// emitTask broadcasts a single-row event to the staff room and, when the
// row's project belongs to a customer, to that customer's client room.
func (b *Board) emitTask(ctx context.Context, tenantID, event string, t Task) {
	b.cast.Broadcast(ctx, StaffRoom(tenantID), Envelope{Event: event, Data: t})
	if customerID := b.customerForProject(ctx, tenantID, t.ProjectID); customerID != "" {
		b.cast.Broadcast(ctx, ClientRoom(tenantID, customerID), Envelope{Event: event, Data: t})
	}
}

// emitTasks broadcasts a multi-row event to the staff room, then the
// customer-filtered subsets to the matching client rooms.
func (b *Board) emitTasks(ctx context.Context, tenantID, event string, tasks []Task) {
	b.cast.Broadcast(ctx, StaffRoom(tenantID), Envelope{Event: event, Data: tasks})
	for customerID, subset := range b.groupByCustomer(ctx, tenantID, tasks) {
		b.cast.Broadcast(ctx, ClientRoom(tenantID, customerID), Envelope{Event: event, Data: subset})
	}
}

// groupByCustomer buckets tasks by the customer of their project.
// Tasks without a project or on customer-less projects are omitted.
func (b *Board) groupByCustomer(ctx context.Context, tenantID string, tasks []Task) map[string][]Task {
	customers := make(map[string]string)
	out := make(map[string][]Task)
	for _, t := range tasks {
		if t.ProjectID == "" {
			continue
		}
		customerID, known := customers[t.ProjectID]
		if !known {
			customerID = b.customerForProject(ctx, tenantID, t.ProjectID)
			customers[t.ProjectID] = customerID
		}
		if customerID == "" {
			continue
		}
		out[customerID] = append(out[customerID], t)
	}
	return out
}

func (b *Board) customerForProject(ctx context.Context, tenantID, projectID string) string {
	if projectID == "" {
		return ""
	}
	proj, err := b.store.GetProject(ctx, tenantID, projectID)
	if err != nil {
		b.log.WithError(err).WithField("project", projectID).Warn("project lookup failed, client room skipped")
		return ""
	}
	if proj == nil {
		return ""
	}
	return proj.CustomerID
}

// dispatchSideEffects runs the notification cascade for a committed
// update. It never returns an error: the mutation is already durable and
// a dispatch failure must not surface as a failed request, so problems
// are logged and swallowed.
func (b *Board) dispatchSideEffects(ctx context.Context, p Principal, prev, next Task, notifySMS bool) {
	diff := DiffTask(prev, next)
	if diff.Empty() {
		return
	}
	ref := func(userID, title, typ string) Notification {
		return Notification{
			UserID:        userID,
			Title:         title,
			Message:       next.Title,
			Type:          typ,
			ReferenceID:   next.ID,
			ReferenceType: "task",
		}
	}

	if diff.AssigneeChanged && next.AssigneeID != p.UserID {
		b.notify(ctx, p.TenantID, ref(next.AssigneeID, "Task assigned", NotifyAssigned))
	}
	for _, member := range diff.AddedMembers {
		if member == next.AssigneeID || member == p.UserID {
			continue
		}
		b.notify(ctx, p.TenantID, ref(member, "Added to task", NotifyMemberAdded))
	}
	if len(diff.DescriptionMentions) > 0 {
		for _, u := range b.usersNamed(ctx, p.TenantID, diff.DescriptionMentions) {
			b.notify(ctx, p.TenantID, ref(u.ID, "Mentioned in task", NotifyMentioned))
		}
	}
	if diff.CompletedTransition {
		for _, userID := range WatcherRecipients(next, p.UserID) {
			b.notify(ctx, p.TenantID, ref(userID, "Task completed", NotifyCompleted))
		}
		if notifySMS && b.sms != nil {
			err := b.sms.TrySendEvent(ctx, p.TenantID, "task-completed", map[string]string{
				"taskId":     next.ID,
				"title":      next.Title,
				"assigneeId": next.AssigneeID,
			})
			if err != nil {
				b.log.WithError(err).WithField("task", next.ID).Error("sms dispatch failed")
			}
		}
	}
	if diff.AttachmentsAdded {
		for _, userID := range WatcherRecipients(next, p.UserID) {
			b.notify(ctx, p.TenantID, ref(userID, "Attachment added", NotifyAttachmentAdded))
		}
	}
	if diff.ChecklistCompleted {
		for _, userID := range WatcherRecipients(next, p.UserID) {
			b.notify(ctx, p.TenantID, ref(userID, "Checklist completed", NotifyChecklistCompleted))
		}
	}
	if len(diff.CommentMentions) > 0 {
		names := make([]string, 0, len(diff.CommentMentions))
		for _, cm := range diff.CommentMentions {
			names = append(names, cm.Name)
		}
		byName := make(map[string]User)
		for _, u := range b.usersNamed(ctx, p.TenantID, names) {
			byName[u.Name] = u
		}
		notified := make(map[string]struct{})
		for _, cm := range diff.CommentMentions {
			u, ok := byName[cm.Name]
			if !ok || u.ID == cm.AuthorID {
				continue
			}
			if _, done := notified[u.ID]; done {
				continue
			}
			notified[u.ID] = struct{}{}
			b.notify(ctx, p.TenantID, ref(u.ID, "Mentioned in comment", NotifyCommentMention))
		}
	}
	if diff.EnteredColumn != "" {
		watchers, err := b.store.ListColumnWatchers(ctx, p.TenantID, diff.EnteredColumn, next.ProjectID)
		if err != nil {
			b.log.WithError(err).WithField("column", diff.EnteredColumn).Error("column watcher lookup failed")
			return
		}
		for _, w := range watchers {
			if w.UserID == p.UserID {
				continue
			}
			b.notify(ctx, p.TenantID, ref(w.UserID, "Task moved to "+string(diff.EnteredColumn), NotifyColumnActivity))
		}
	}
}

func (b *Board) usersNamed(ctx context.Context, tenantID string, names []string) []User {
	users, err := b.store.ActiveUsersNamed(ctx, tenantID, names)
	if err != nil {
		b.log.WithError(err).Error("mention lookup failed")
		return nil
	}
	return users
}

func (b *Board) notify(ctx context.Context, tenantID string, n Notification) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Create(ctx, tenantID, n); err != nil {
		b.log.WithError(err).WithField("user", n.UserID).WithField("type", n.Type).Error("notification dispatch failed")
	}
}
