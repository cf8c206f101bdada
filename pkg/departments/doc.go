// Package departments manages the college's organizational units: the
// departments themselves, their staff members and their academic sections.
//
// A department cannot be deleted while it still owns staff members,
// academic sections or users; the delete handler rejects with a message
// naming each nonzero count so the operator knows what to move first.
package departments
