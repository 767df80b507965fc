// Command blendctl is the operator CLI: password hashing and local seeding of
// stores and users.
package main

func main() {
	Execute()
}
