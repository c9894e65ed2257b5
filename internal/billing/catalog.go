package billing

import (
	"transkript-bot/internal/models"
)

func (s *Service) PlanByID(id uint) (*models.Plan, error) {
	return s.repo.GetPlanByID(id)
}

func (s *Service) PlanByName(name string) (*models.Plan, error) {
	return s.repo.GetPlanByName(name)
}

func (s *Service) ListPlans() ([]models.Plan, error) {
	return s.repo.ListActivePlans()
}

func (s *Service) PackageByID(id uint) (*models.Package, error) {
	return s.repo.GetPackageByID(id)
}

func (s *Service) PackageByName(name string) (*models.Package, error) {
	return s.repo.GetPackageByName(name)
}

func (s *Service) ListPackages() ([]models.Package, error) {
	return s.repo.ListPackages()
}

// Transactions returns a page of the user's minute audit log, newest first.
func (s *Service) Transactions(userID uint, limit, offset int) ([]models.MinuteTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListMinuteTransactions(userID, limit, offset)
}
